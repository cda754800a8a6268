package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/mossriver/alphacouncil/internal/domain"
)

// ForecastClient talks to the external forecast service that backs the
// remote producers. The service is the black box that turns data and
// prompts into a structured forecast; this side only validates the shape.
type ForecastClient struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewForecastClient builds a client against baseURL.
func NewForecastClient(baseURL string, timeout time.Duration) *ForecastClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "forecast-service",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     45 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &ForecastClient{client: client, breaker: breaker}
}

type remoteForecast struct {
	Outlook             string                 `json:"outlook"`
	Confidence          float64                `json:"confidence"`
	Timeframe           string                 `json:"timeframe"`
	Reasoning           string                 `json:"reasoning"`
	KeyFactors          []string               `json:"key_factors"`
	Uncertainties       []string               `json:"uncertainties"`
	DataSources         []string               `json:"data_sources"`
	SpecificPredictions map[string]interface{} `json:"specific_predictions"`
}

// Fetch requests a forecast for producerID and validates it.
func (c *ForecastClient) Fetch(ctx context.Context, producerID string) (*domain.Forecast, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var out remoteForecast
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&out).
			SetPathParam("producer", producerID).
			Get("/v1/forecasts/{producer}")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("forecast service: status %d", resp.StatusCode())
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch forecast for %s: %w", producerID, err)
	}

	rf := raw.(*remoteForecast)
	outlook := domain.Outlook(rf.Outlook)
	if !outlook.Valid() {
		return nil, fmt.Errorf("forecast for %s: invalid outlook %q", producerID, rf.Outlook)
	}
	if rf.Confidence < 0 || rf.Confidence > 1 {
		return nil, fmt.Errorf("forecast for %s: confidence %.3f out of range", producerID, rf.Confidence)
	}

	timeframe := domain.Timeframe(rf.Timeframe)
	if timeframe == "" {
		timeframe = domain.TimeframeMonth
	}

	return &domain.Forecast{
		ProducerID:          producerID,
		Timestamp:           time.Now().UTC(),
		Outlook:             outlook,
		Confidence:          rf.Confidence,
		Timeframe:           timeframe,
		SpecificPredictions: rf.SpecificPredictions,
		Reasoning:           rf.Reasoning,
		KeyFactors:          rf.KeyFactors,
		Uncertainties:       rf.Uncertainties,
		DataSources:         rf.DataSources,
	}, nil
}

// Remote is a producer backed by the external forecast service.
type Remote struct {
	id     string
	client *ForecastClient
}

// NewRemote builds a remote producer for id.
func NewRemote(id string, client *ForecastClient) *Remote {
	return &Remote{id: id, client: client}
}

func (r *Remote) ID() string { return r.id }

func (r *Remote) Produce(ctx context.Context) (*domain.Forecast, error) {
	return r.client.Fetch(ctx, r.id)
}
