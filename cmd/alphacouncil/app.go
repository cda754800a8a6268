package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/application/consensus"
	"github.com/mossriver/alphacouncil/internal/application/learning"
	"github.com/mossriver/alphacouncil/internal/application/pipeline"
	"github.com/mossriver/alphacouncil/internal/application/sizing"
	"github.com/mossriver/alphacouncil/internal/config"
	"github.com/mossriver/alphacouncil/internal/infrastructure/cache"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	"github.com/mossriver/alphacouncil/internal/infrastructure/synthesis"
	"github.com/mossriver/alphacouncil/internal/persistence"
	"github.com/mossriver/alphacouncil/internal/persistence/postgres"
	"github.com/mossriver/alphacouncil/internal/producer"
)

// app wires configuration into live collaborators. Postgres and Redis are
// optional; their absence selects in-memory fallbacks.
type app struct {
	cfg      *config.Config
	source   market.Source
	cache    *cache.RedisCache
	db       *sqlx.DB
	registry *producer.Registry

	forecasts persistence.ForecastRepo
	insights  persistence.InsightRepo
	orders    persistence.OrderRepo
	outcomes  persistence.OutcomeRepo
	weights   persistence.WeightStore
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		source:   market.NewHTTPSource(cfg.Market.QuoteURL, cfg.Market.RateLimitRPS, cfg.Market.Timeout),
		registry: producer.DefaultRegistry(),
	}

	if cfg.Storage.RedisAddr != "" {
		redisCache, err := cache.New(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without forecast cache")
		} else {
			a.cache = redisCache
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		db, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		timeout := cfg.Storage.QueryTimeout
		a.forecasts = postgres.NewForecastRepo(db, timeout)
		a.insights = postgres.NewInsightRepo(db, timeout)
		a.orders = postgres.NewOrderRepo(db, timeout)
		a.outcomes = postgres.NewOutcomeRepo(db, timeout)
		a.weights = postgres.NewWeightStore(db, timeout)
	} else {
		log.Info().Msg("No postgres DSN configured, using in-memory storage")
		mem := persistence.NewMemoryStore()
		a.forecasts = mem
		a.insights = mem.Insights()
		a.orders = mem.Orders()
		a.outcomes = mem.Outcomes()
		a.weights = mem
	}

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
}

func (a *app) producerDeps() producer.Deps {
	deps := producer.Deps{
		Market:    a.source,
		Benchmark: a.cfg.Sizing.PrimarySymbol,
		Limits:    a.cfg.Risk.Limits,
		Portfolio: a.cfg.Risk.Portfolio,
	}
	if a.cache != nil {
		deps.Cache = a.cache
	}
	if a.cfg.Forecast.BaseURL != "" {
		deps.Remote = producer.NewForecastClient(a.cfg.Forecast.BaseURL, a.cfg.Forecast.Timeout)
	}
	return deps
}

func (a *app) engine() *consensus.Engine {
	var synthesizer consensus.Synthesizer
	if a.cfg.Synthesis.BaseURL != "" {
		synthesizer = synthesis.NewClient(a.cfg.Synthesis.BaseURL, a.cfg.Synthesis.Timeout)
	}
	return consensus.NewEngine(a.weights, synthesizer)
}

func (a *app) sizer() *sizing.Sizer {
	return sizing.NewSizer(sizing.Config{
		PortfolioValue:       a.cfg.Sizing.PortfolioValue,
		KellySafetyFraction:  a.cfg.Sizing.KellySafetyFraction,
		MaxPositionPct:       a.cfg.Sizing.MaxPositionPct,
		ActionableConfidence: a.cfg.Sizing.ActionableConfidence,
		ApprovalFraction:     a.cfg.Sizing.ApprovalFraction,
		ApprovalMinEdge:      a.cfg.Sizing.ApprovalMinEdge,
		PrimarySymbol:        a.cfg.Sizing.PrimarySymbol,
		SecondarySymbol:      a.cfg.Sizing.SecondarySymbol,
	}, a.source, a.outcomes)
}

func (a *app) learner() *learning.Loop {
	return learning.NewLoop(learning.Config{
		LookbackDays:   a.cfg.Learning.LookbackDays,
		MinPredictions: a.cfg.Learning.MinPredictions,
		AdjustmentRate: a.cfg.Learning.AdjustmentRate,
		Benchmark:      a.cfg.Learning.Benchmark,
	}, a.source, a.forecasts, a.outcomes, a.weights)
}

func (a *app) orchestrator(metrics pipeline.Metrics) *pipeline.Orchestrator {
	deps := a.producerDeps()
	phases := pipeline.BuildPhases(a.registry, deps, a.cfg.Pipeline.Phases, a.cfg.Storage.CacheTTL)
	riskProducer := pipeline.BuildRiskProducer(a.registry, deps, a.cfg.Pipeline.RiskProducer)

	opts := pipeline.Options{
		Learner:  a.learner(),
		Insights: a.insights,
		Orders:   a.orders,
		Metrics:  metrics,
	}
	if a.cache != nil {
		opts.Cache = a.cache
	}

	return pipeline.NewOrchestrator(phases, riskProducer, a.cfg.Pipeline.ProducerTimeout,
		a.engine(), a.sizer(), a.forecasts, opts)
}
