package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "alphacouncil"
	version = "v0.3.0"
)

var flagConfig string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	// Local overrides for DSNs and service URLs; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-producer market forecast pipeline",
		Version: version,
		Long: `alphacouncil runs a council of forecast producers through a phased
pipeline: gather, analyze, risk-gate, aggregate, size and learn.

Subcommands run one slice of the pipeline for inspection; 'run' drives a
complete forecast cycle.`,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "Path to YAML config (missing file uses defaults)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAgentCmd())
	rootCmd.AddCommand(newLearnCmd())
	rootCmd.AddCommand(newWeightsCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
