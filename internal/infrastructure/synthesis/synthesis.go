// Package synthesis provides the HTTP-backed narrative synthesizer used by
// the consensus engine.
package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/mossriver/alphacouncil/internal/application/consensus"
	"github.com/mossriver/alphacouncil/internal/domain"
)

// Client calls the synthesis service for consensus reasoning. It satisfies
// consensus.Synthesizer; callers degrade gracefully when it errors.
type Client struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a synthesizer against baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "synthesis-service",
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

	return &Client{client: client, breaker: breaker}
}

type synthesisRequest struct {
	WinningOutlook string                      `json:"winning_outlook"`
	Forecasts      map[string]*domain.Forecast `json:"forecasts"`
	Conflicts      []domain.Conflict           `json:"conflicts,omitempty"`
}

type synthesisResponse struct {
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}

// Synthesize requests narrative reasoning for the winning outlook.
func (c *Client) Synthesize(ctx context.Context, forecasts map[string]*domain.Forecast, winning domain.Outlook, conflicts []domain.Conflict) (*consensus.Synthesis, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var out synthesisResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(synthesisRequest{
				WinningOutlook: string(winning),
				Forecasts:      forecasts,
				Conflicts:      conflicts,
			}).
			SetResult(&out).
			Post("/v1/synthesize")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("synthesis service: status %d", resp.StatusCode())
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	out := raw.(*synthesisResponse)
	return &consensus.Synthesis{
		Reasoning:       out.Reasoning,
		Recommendations: out.Recommendations,
	}, nil
}
