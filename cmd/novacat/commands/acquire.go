package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/coordinator"
	"github.com/novacat/novacat/internal/notify"
	"github.com/novacat/novacat/internal/objectstore"
	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/provider"
	"github.com/novacat/novacat/internal/spectra"
	"github.com/novacat/novacat/pkg/catalog"
)

var (
	acquireNovaID        string
	acquireCorrelationID string
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <product-id>",
	Short: "Acquire and validate one data product",
	Long: `Runs the acquire-and-validate workflow for a single product: fetch
the spectra bytes from the product's provider, validate them, and record the
outcome in the catalog. The invocation is idempotent; re-running it for the
same product and correlation ID is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().StringVar(&acquireNovaID, "nova", "", "nova UUID the product belongs to (required)")
	acquireCmd.Flags().StringVar(&acquireCorrelationID, "correlation", "", "correlation ID for tracing (defaults to a new UUID)")
	acquireCmd.MarkFlagRequired("nova")
	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	productID, err := resolveProductArg(cmd.Context(), store, acquireNovaID, args[0])
	if err != nil {
		return err
	}

	product, err := store.GetProduct(cmd.Context(), acquireNovaID, productID)
	if err != nil {
		if catalog.IsNotFound(err) {
			return printer.Errorf("product %s not found in nova %s", productID, acquireNovaID)
		}
		return printer.Errorf("failed to load product: %v", err)
	}

	registry := provider.NewRegistry()
	if err := registry.Register(product.Provider, provider.NewHTTPAdapter(nil)); err != nil {
		return printer.Errorf("failed to register provider: %v", err)
	}

	workflow := cfg.WorkflowOrDefault()
	coord := coordinator.New(
		store,
		registry,
		spectra.NewValidator(),
		objectstore.NewRedisStore(store.RedisClient()),
		notify.NewPublisher(store.RedisClient()),
		coordinator.Config{
			AcquireTimeout:  workflow.AcquireTimeout,
			ValidateTimeout: workflow.ValidateTimeout,
			LockTTL:         workflow.LockTTL,
		},
	)

	result, err := coord.Run(cmd.Context(), coordinator.Request{
		NovaID:        acquireNovaID,
		ProductID:     productID,
		CorrelationID: acquireCorrelationID,
	})
	if err != nil {
		return printer.Errorf("execution failed: %v", err)
	}

	printOutcome(result)
	return nil
}

func printOutcome(result coordinator.Result) {
	switch result.Outcome {
	case coordinator.OutcomeValidated:
		printer.Success("VALIDATED (job run %s)\n", result.JobRunID)
	case coordinator.OutcomeDuplicateOfExisting:
		printer.Info("DUPLICATE_OF_EXISTING: canonical product is %s (job run %s)\n",
			result.DuplicateOfProductID, result.JobRunID)
	case coordinator.OutcomeSkippedDuplicate:
		printer.Info("SKIPPED_DUPLICATE: nothing to do\n")
	case coordinator.OutcomeSkippedBackoff:
		printer.Info("SKIPPED_BACKOFF: next eligible attempt at %s\n",
			formatMs(result.NextEligibleAttemptMs))
	case coordinator.OutcomeQuarantined:
		printer.Warning("QUARANTINED: %s (job run %s)\n", result.QuarantineReasonCode, result.JobRunID)
	case coordinator.OutcomeFailedRetryable:
		printer.Warning("FAILED_RETRYABLE: fingerprint %s, next attempt at %s (job run %s)\n",
			result.ErrorFingerprint, formatMs(result.NextEligibleAttemptMs), result.JobRunID)
	case coordinator.OutcomeTerminalFail:
		printer.Errorf("TERMINAL_FAIL: fingerprint %s (job run %s)",
			result.ErrorFingerprint, result.JobRunID)
	default:
		fmt.Printf("%s (job run %s)\n", result.Outcome, result.JobRunID)
	}
}
