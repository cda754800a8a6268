package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	httpiface "github.com/mossriver/alphacouncil/internal/interfaces/http"
)

var flagRunInterval time.Duration

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status server and quote stream",
		Long:  "Serves /health, /metrics, /insights/latest, /quotes and /weights. With --interval, also runs the pipeline on a schedule.",
		RunE:  runServe,
	}
	cmd.Flags().DurationVar(&flagRunInterval, "interval", 0, "Run the pipeline every interval (0 disables scheduled runs)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.close()

	metrics := httpiface.NewMetricsRegistry()

	var stream *market.StreamClient
	if a.cfg.Market.StreamURL != "" {
		stream = market.NewStreamClient(a.cfg.Market.StreamURL, a.cfg.Market.Symbols)
		stream.Start(ctx)
		defer stream.Close()
	}

	serverCfg := httpiface.DefaultServerConfig()
	serverCfg.Host = a.cfg.HTTP.Host
	serverCfg.Port = a.cfg.HTTP.Port

	server, err := httpiface.NewServer(serverCfg, httpiface.Deps{
		Insights: a.insights,
		Weights:  a.weights,
		Cache:    a.cache,
		Stream:   stream,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	if flagRunInterval > 0 {
		go scheduleRuns(ctx, a, metrics, flagRunInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// scheduleRuns drives the pipeline on a fixed interval, refreshing the
// weight and cache gauges after each run.
func scheduleRuns(ctx context.Context, a *app, metrics *httpiface.MetricsRegistry, interval time.Duration) {
	orchestrator := a.orchestrator(metrics)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := orchestrator.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("Scheduled run failed")
			}
			if weights, err := a.weights.All(ctx); err == nil {
				metrics.SetWeights(weights)
			}
			if a.cache != nil {
				metrics.SetCacheStats(a.cache.Stats())
			}
		}
	}
}
