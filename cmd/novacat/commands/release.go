package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/review"
	"github.com/novacat/novacat/pkg/catalog"
)

var (
	releaseNovaID   string
	releaseDecision string
)

var releaseCmd = &cobra.Command{
	Use:   "release <product-id>",
	Short: "Clear a quarantined product with a review decision",
	Long: `Applies a reviewer decision to a quarantined product.

  --decision retry-approved    re-arm the product for acquisition with
                               a fresh retry budget
  --decision terminal          declare the product permanently invalid

Quarantine is only ever cleared this way; the workflow never resumes a
quarantined product on its own.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseNovaID, "nova", "", "nova UUID the product belongs to (required)")
	releaseCmd.Flags().StringVar(&releaseDecision, "decision", "", "review decision: retry-approved or terminal (required)")
	releaseCmd.MarkFlagRequired("nova")
	releaseCmd.MarkFlagRequired("decision")
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	var decision review.Decision
	switch strings.ToLower(releaseDecision) {
	case "retry-approved":
		decision = review.DecisionRetryApproved
	case "terminal":
		decision = review.DecisionTerminal
	default:
		return printer.Errorf("invalid --decision %q (use retry-approved or terminal)", releaseDecision)
	}

	store, _, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	productID, err := resolveProductArg(cmd.Context(), store, releaseNovaID, args[0])
	if err != nil {
		return err
	}

	product, err := review.Clear(cmd.Context(), store, releaseNovaID, productID, decision)
	if err != nil {
		return printer.Errorf("failed to clear quarantine: %v", err)
	}

	switch decision {
	case review.DecisionRetryApproved:
		printer.Success("product %s re-armed for acquisition (%s)\n",
			product.ProductID, printer.Eligibility(catalog.EligibilityAcquire))
	case review.DecisionTerminal:
		printer.Success("product %s marked %s\n",
			product.ProductID, printer.ValidationStatus(catalog.ValidationTerminalInvalid))
	}
	return nil
}
