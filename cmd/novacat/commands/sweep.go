package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/coordinator"
	"github.com/novacat/novacat/internal/notify"
	"github.com/novacat/novacat/internal/objectstore"
	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/provider"
	"github.com/novacat/novacat/internal/spectra"
	"github.com/novacat/novacat/internal/telemetry"
)

var (
	sweepNovaID   string
	sweepProvider string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the acquisition workflow over all eligible products",
	Long: `Walks the eligibility index for one (nova, provider) pair and runs
the acquire-and-validate workflow for each product still pending
acquisition. Sweep invocations use time-bucketed idempotency keys, so
re-running a sweep within the same bucket is a no-op per product.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepNovaID, "nova", "", "nova UUID to sweep (required)")
	sweepCmd.Flags().StringVar(&sweepProvider, "provider", "", "provider whose eligible products to sweep (required)")
	sweepCmd.MarkFlagRequired("nova")
	sweepCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	if cfg.Metrics != nil && cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				printer.Warning("metrics endpoint failed: %v\n", err)
			}
		}()
	}

	registry := provider.NewRegistry()
	if err := registry.Register(sweepProvider, provider.NewHTTPAdapter(nil)); err != nil {
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

	productIDs, err := store.EligibleProducts(cmd.Context(), sweepNovaID, sweepProvider)
	if err != nil {
		return printer.Errorf("failed to read eligibility index: %v", err)
	}
	if len(productIDs) == 0 {
		printer.Info("no eligible products for provider %s\n", sweepProvider)
		return nil
	}

	correlationID := uuid.New().String()
	now := time.Now()
	outcomes := make(map[coordinator.Outcome]int)
	for _, productID := range productIDs {
		result, err := coord.Run(cmd.Context(), coordinator.Request{
			NovaID:         sweepNovaID,
			ProductID:      productID,
			CorrelationID:  correlationID,
			IdempotencyKey: coordinator.SweepKey(coordinator.WorkflowName, productID, now),
		})
		if err != nil {
			printer.Warning("%s: execution failed: %v\n", productID, err)
			continue
		}
		outcomes[result.Outcome]++
		printOutcome(result)
	}

	fmt.Println()
	for outcome, count := range outcomes {
		fmt.Printf("%-24s %d\n", string(outcome), count)
	}
	return nil
}
