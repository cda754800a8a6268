// Package pipeline runs the forecast workflow: phased concurrent
// producers, the risk veto gate, consensus, sizing and learning.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/application/consensus"
	"github.com/mossriver/alphacouncil/internal/application/learning"
	"github.com/mossriver/alphacouncil/internal/application/sizing"
	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
	"github.com/mossriver/alphacouncil/internal/producer"
)

// Phase is one stage of producers that run concurrently. Phases execute
// sequentially in slice order.
type Phase struct {
	Name      string
	Producers []producer.Producer
}

// Metrics receives run instrumentation. The default is a no-op.
type Metrics interface {
	PhaseObserved(phase string, seconds float64)
	ProducerFailed(producerID string)
	RunCompleted(result string)
}

type nopMetrics struct{}

func (nopMetrics) PhaseObserved(string, float64) {}
func (nopMetrics) ProducerFailed(string)         {}
func (nopMetrics) RunCompleted(string)           {}

// InsightCache exposes the latest consensus to fast readers. Optional.
type InsightCache interface {
	SetLatest(ctx context.Context, insight *domain.AggregatedInsight) error
}

// Orchestrator drives one forecast run end to end.
type Orchestrator struct {
	phases       []Phase
	riskProducer producer.Producer
	timeout      time.Duration

	engine  *consensus.Engine
	sizer   *sizing.Sizer
	learner *learning.Loop

	forecasts persistence.ForecastRepo
	insights  persistence.InsightRepo
	orders    persistence.OrderRepo
	cache     InsightCache
	metrics   Metrics
}

// Options carries the optional collaborators of an orchestrator.
type Options struct {
	Learner  *learning.Loop
	Insights persistence.InsightRepo
	Orders   persistence.OrderRepo
	Cache    InsightCache
	Metrics  Metrics
}

// NewOrchestrator builds an orchestrator. engine, sizer and the forecast
// repo are required; everything in opts may be nil.
func NewOrchestrator(phases []Phase, riskProducer producer.Producer, timeout time.Duration,
	engine *consensus.Engine, sizer *sizing.Sizer, forecasts persistence.ForecastRepo, opts Options) *Orchestrator {

	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Orchestrator{
		phases:       phases,
		riskProducer: riskProducer,
		timeout:      timeout,
		engine:       engine,
		sizer:        sizer,
		learner:      opts.Learner,
		forecasts:    forecasts,
		insights:     opts.Insights,
		orders:       opts.Orders,
		cache:        opts.Cache,
		metrics:      metrics,
	}
}

// Run executes one full forecast run. The returned state is always
// complete: failures surface in Errors, never as a nil state.
func (o *Orchestrator) Run(ctx context.Context) (*State, error) {
	state := newState(uuid.NewString())
	log.Info().Str("component", "pipeline").Str("run_id", state.RunID).Msg("Run started")

	for _, phase := range o.phases {
		if err := ctx.Err(); err != nil {
			state.Errors = append(state.Errors, "run cancelled: "+err.Error())
			o.finalize(state, "cancelled")
			return state, err
		}
		o.runPhase(ctx, state, phase)
	}

	o.riskGate(ctx, state)

	state.CurrentPhase = "aggregation"
	state.Consensus = o.engine.Aggregate(ctx, state.ProducerResults, state.Vetoed, state.VetoReason)
	o.persistRun(ctx, state)

	if state.Vetoed {
		log.Warn().Str("component", "pipeline").
			Str("run_id", state.RunID).
			Str("reason", state.VetoReason).
			Msg("Run vetoed, skipping sizing")
		o.finalize(state, "vetoed")
		return state, nil
	}

	o.executionPhase(ctx, state)
	o.finalize(state, "completed")
	return state, nil
}

// runPhase fans the phase's producers out on goroutines and merges their
// deltas in arrival order.
func (o *Orchestrator) runPhase(ctx context.Context, state *State, phase Phase) {
	state.CurrentPhase = phase.Name
	started := time.Now()

	deltas := make(chan delta, len(phase.Producers))
	var wg sync.WaitGroup
	for _, p := range phase.Producers {
		wg.Add(1)
		go func(p producer.Producer) {
			defer wg.Done()
			deltas <- delta{producerID: p.ID(), result: o.invoke(ctx, p)}
		}(p)
	}
	wg.Wait()
	close(deltas)

	for d := range deltas {
		if !d.result.Success {
			o.metrics.ProducerFailed(d.producerID)
		}
		state.apply(d)
	}

	elapsed := time.Since(started)
	o.metrics.PhaseObserved(phase.Name, elapsed.Seconds())
	log.Info().Str("component", "pipeline").
		Str("run_id", state.RunID).
		Str("phase", phase.Name).
		Dur("elapsed", elapsed).
		Int("producers", len(phase.Producers)).
		Msg("Phase complete")
}

// invoke runs one producer under the per-producer timeout. A panic or
// timeout becomes a failed result; it never takes the run down.
func (o *Orchestrator) invoke(ctx context.Context, p producer.Producer) (result *domain.ProducerResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "pipeline").
				Str("producer", p.ID()).
				Interface("panic", r).
				Msg("Producer panicked")
			result = domain.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	forecast, err := p.Produce(pctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "pipeline").
			Str("producer", p.ID()).
			Msg("Producer failed")
		return domain.Failed(err.Error())
	}

	res := domain.Succeeded(forecast)
	if cached, ok := p.(interface{ WasCached() bool }); ok {
		res.Cached = cached.WasCached()
	}
	return res
}

// riskGate runs the risk producer and applies the veto rule. A failed
// risk assessment fails open: the run continues, the failure is recorded.
func (o *Orchestrator) riskGate(ctx context.Context, state *State) {
	if o.riskProducer == nil {
		return
	}
	state.CurrentPhase = "risk_assessment"

	result := o.invoke(ctx, o.riskProducer)
	state.apply(delta{producerID: o.riskProducer.ID(), result: result})

	if !result.Success {
		o.metrics.ProducerFailed(o.riskProducer.ID())
		log.Warn().Str("component", "pipeline").
			Str("run_id", state.RunID).
			Str("error", result.Err).
			Msg("Risk assessment failed, continuing without veto")
		return
	}

	portfolioRisk, _ := result.Forecast.PredictionFloat("portfolio_risk")
	positionRisks := result.Forecast.PredictionFloatMap("position_risks")
	var maxPositionRisk float64
	for _, r := range positionRisks {
		if r > maxPositionRisk {
			maxPositionRisk = r
		}
	}

	switch {
	case portfolioRisk > 0.8:
		state.Vetoed = true
		state.VetoReason = fmt.Sprintf("Portfolio risk too high: %.1f%%", portfolioRisk*100)
	case maxPositionRisk > 0.9:
		state.Vetoed = true
		state.VetoReason = fmt.Sprintf("Position risk too high: %.1f%%", maxPositionRisk*100)
	}
}

// executionPhase sizes orders and runs a learning cycle concurrently.
func (o *Orchestrator) executionPhase(ctx context.Context, state *State) {
	state.CurrentPhase = "execution"

	var wg sync.WaitGroup
	if o.learner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.learner.RunCycle(ctx); err != nil {
				log.Warn().Err(err).Str("component", "pipeline").
					Str("run_id", state.RunID).
					Msg("Learning cycle failed")
			}
		}()
	}

	orders, err := o.sizer.BuildOrders(ctx, state.Consensus)
	if err != nil {
		state.Errors = append(state.Errors, "sizing: "+err.Error())
		log.Warn().Err(err).Str("component", "pipeline").
			Str("run_id", state.RunID).
			Msg("Sizing failed")
	} else {
		state.SizedOrders = orders
		if len(orders) > 0 && o.orders != nil {
			if err := o.orders.Save(ctx, state.RunID, orders); err != nil {
				state.Errors = append(state.Errors, "persist orders: "+err.Error())
			}
		}
	}

	wg.Wait()
}

// persistRun stores the successful forecasts and the consensus. Storage
// failures degrade the record, not the run.
func (o *Orchestrator) persistRun(ctx context.Context, state *State) {
	if o.forecasts != nil {
		for id, res := range state.ProducerResults {
			if res == nil || !res.Success || res.Cached {
				continue
			}
			if _, err := o.forecasts.Save(ctx, res.Forecast); err != nil {
				state.Errors = append(state.Errors, "persist forecast "+id+": "+err.Error())
			}
		}
	}
	if o.insights != nil && state.Consensus != nil {
		if err := o.insights.Save(ctx, state.Consensus); err != nil {
			state.Errors = append(state.Errors, "persist insight: "+err.Error())
		}
	}
	if o.cache != nil && state.Consensus != nil {
		if err := o.cache.SetLatest(ctx, state.Consensus); err != nil {
			log.Warn().Err(err).Str("component", "pipeline").
				Str("run_id", state.RunID).
				Msg("Insight cache write failed")
		}
	}
}

func (o *Orchestrator) finalize(state *State, result string) {
	state.CompletedAt = time.Now().UTC()
	state.CurrentPhase = "completed"
	o.metrics.RunCompleted(result)
	log.Info().Str("component", "pipeline").
		Str("run_id", state.RunID).
		Str("result", result).
		Int("forecasts", state.SuccessCount()).
		Int("orders", len(state.SizedOrders)).
		Int("errors", len(state.Errors)).
		Dur("elapsed", state.CompletedAt.Sub(state.StartedAt)).
		Msg("Run finished")
}
