package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/printer"
	"github.com/novacat/novacat/internal/timespec"
	"github.com/novacat/novacat/pkg/catalog"
)

var (
	listNovaID   string
	listEligible bool
	listSince    string
	listUntil    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a nova's data products",
	Long: `Lists the product records of one nova with their acquisition and
validation state. Use --eligible to show only products still pending
acquisition, and --since/--until to filter by discovery time.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listNovaID, "nova", "", "nova UUID to list (required)")
	listCmd.Flags().BoolVar(&listEligible, "eligible", false, "only products eligible for acquisition")
	listCmd.Flags().StringVar(&listSince, "since", "", "only products discovered after this time (e.g. '1h30m' or RFC3339)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "only products discovered before this time")
	listCmd.MarkFlagRequired("nova")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	sinceMS, untilMS, err := timespec.ParseRange(listSince, listUntil)
	if err != nil {
		return printer.Errorf("%v", err)
	}

	store, _, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	products, err := store.ScanProducts(cmd.Context(), listNovaID)
	if err != nil {
		return printer.Errorf("failed to scan products: %v", err)
	}

	var shown int
	fmt.Printf("%-36s %-12s %-16s %-16s %-8s %s\n",
		"PRODUCT", "PROVIDER", "ACQUISITION", "VALIDATION", "ELIGIBLE", "DISCOVERED")
	for _, p := range products {
		if listEligible && p.Eligibility != catalog.EligibilityAcquire {
			continue
		}
		if sinceMS > 0 && p.CreatedAtMs < sinceMS {
			continue
		}
		if untilMS > 0 && p.CreatedAtMs > untilMS {
			continue
		}
		fmt.Printf("%-36s %-12s %-16s %-16s %-8s %s\n",
			p.ProductID,
			p.Provider,
			string(p.AcquisitionStatus),
			printer.ValidationStatus(p.ValidationStatus),
			printer.Eligibility(p.Eligibility),
			formatMs(p.CreatedAtMs))
		shown++
	}

	fmt.Printf("\n%d product(s)\n", shown)
	return nil
}

// formatMs renders a Unix millisecond timestamp for terminal output.
func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
