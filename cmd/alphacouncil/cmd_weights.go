package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWeightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "List current producer weights",
		RunE:  runWeights,
	}
}

func runWeights(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.close()

	weights, err := a.weights.All(ctx)
	if err != nil {
		return err
	}

	// Unlisted producers sit at the 1.0 default.
	for _, id := range a.registry.IDs() {
		if _, ok := weights[id]; !ok {
			weights[id] = 1.0
		}
	}

	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCER\tWEIGHT")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%.3f\n", id, weights[id])
	}
	return w.Flush()
}
