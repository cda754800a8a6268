package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mossriver/alphacouncil/internal/execution"
	httpiface "github.com/mossriver/alphacouncil/internal/interfaces/http"
)

var (
	flagRunJSON    bool
	flagRunExecute bool
	flagCommission float64
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full forecast cycle",
		Long:  "Runs every phase, applies the risk gate, aggregates the consensus, sizes orders and runs a learning cycle.",
		RunE:  runRun,
	}
	cmd.Flags().BoolVar(&flagRunJSON, "json", false, "Print the final run state as JSON")
	cmd.Flags().BoolVar(&flagRunExecute, "execute", false, "Fill sized orders against the paper broker")
	cmd.Flags().Float64Var(&flagCommission, "commission", 1.0, "Paper broker per-order commission")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.close()

	metrics := httpiface.NewMetricsRegistry()
	state, err := a.orchestrator(metrics).Run(ctx)
	if err != nil {
		return err
	}

	if flagRunExecute && len(state.SizedOrders) > 0 {
		broker := execution.NewPaperBroker(a.source, a.cfg.Sizing.PortfolioValue, flagCommission)
		for _, order := range state.SizedOrders {
			result, err := broker.Execute(ctx, order)
			if err != nil {
				log.Warn().Err(err).Str("symbol", order.Symbol).Msg("Execution failed")
				continue
			}
			log.Info().Str("order_id", result.OrderID).
				Str("symbol", result.Symbol).
				Str("status", result.Status).
				Msg("Order executed")
		}
	}

	if flagRunJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	if state.Consensus != nil {
		fmt.Printf("run %s: %s at %.1f%% confidence, %d orders\n",
			state.RunID, state.Consensus.OverallOutlook,
			state.Consensus.Confidence*100, len(state.SizedOrders))
		if state.Vetoed {
			fmt.Printf("VETOED: %s\n", state.VetoReason)
		}
	}
	return nil
}
