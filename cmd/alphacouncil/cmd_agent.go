package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent <producer-id>",
		Short: "Run a single producer and print its forecast",
		Args:  cobra.ExactArgs(1),
		RunE:  runAgent,
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.registry.New(args[0], a.producerDeps())
	if err != nil {
		return err
	}

	forecast, err := p.Produce(ctx)
	if err != nil {
		return fmt.Errorf("produce: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(forecast)
}
