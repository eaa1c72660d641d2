package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novacat/novacat/internal/coordinator"
	"github.com/novacat/novacat/internal/printer"
)

var (
	runsNovaID string
	runsLimit  int64
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent workflow executions",
	Long: `Lists the most recent acquire-and-validate executions for a nova,
newest first, with their terminal outcomes.`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsNovaID, "nova", "", "nova UUID to inspect (required)")
	runsCmd.Flags().Int64Var(&runsLimit, "limit", 20, "maximum number of executions to show")
	runsCmd.MarkFlagRequired("nova")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return printer.Errorf("failed to open catalog: %v", err)
	}
	defer store.Close()

	ids, err := store.ListJobRuns(cmd.Context(), runsNovaID, coordinator.WorkflowName, runsLimit)
	if err != nil {
		return printer.Errorf("failed to list job runs: %v", err)
	}
	if len(ids) == 0 {
		printer.Info("no executions recorded\n")
		return nil
	}

	fmt.Printf("%-36s %-36s %-10s %-22s %s\n",
		"JOB RUN", "PRODUCT", "STATUS", "OUTCOME", "STARTED")
	for _, id := range ids {
		run, err := store.GetJobRun(cmd.Context(), runsNovaID, id)
		if err != nil {
			printer.Warning("%s: %v\n", id, err)
			continue
		}
		outcome := run.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Printf("%-36s %-36s %-10s %-22s %s\n",
			run.JobRunID, run.ProductID, run.Status, outcome, formatMs(run.StartedAtMs))
	}
	return nil
}
