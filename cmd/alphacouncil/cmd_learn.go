package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagLearnJSON bool

func newLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Run one learning cycle",
		Long:  "Scores stored forecasts against realized returns, persists outcomes and adjusts producer weights.",
		RunE:  runLearn,
	}
	cmd.Flags().BoolVar(&flagLearnJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.learner().RunCycle(ctx)
	if err != nil {
		return err
	}

	if flagLearnJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("scored %d outcomes, regime %s\n", report.Outcomes, report.CurrentRegime)
	for _, change := range report.WeightChanges {
		fmt.Printf("  %-18s %.3f -> %.3f\n", change.ProducerID, change.Old, change.New)
	}
	if len(report.WeightChanges) == 0 {
		fmt.Println("  no weight changes")
	}
	return nil
}
