// Package market provides access to quote and return data for sizing and
// learning. The HTTP source is rate limited and circuit broken; a
// websocket stream keeps a live quote book for the status server.
package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Quote is a point-in-time price observation.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// ReturnPoint is one daily close and its return over the prior close.
type ReturnPoint struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Return float64   `json:"return"`
}

// Source serves quotes and daily return history.
type Source interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	DailyReturns(ctx context.Context, symbol string, days int) ([]ReturnPoint, error)
}

// HTTPSource fetches market data from a JSON quote service.
type HTTPSource struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSource builds a source against baseURL with the given request
// rate budget.
func NewHTTPSource(baseURL string, rps float64, timeout time.Duration) *HTTPSource {
	if rps <= 0 {
		rps = 5
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-data",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &HTTPSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps))),
		breaker: breaker,
	}
}

type quoteResponse struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

type candleResponse struct {
	Candles []struct {
		Date  string  `json:"date"` // YYYY-MM-DD
		Close float64 `json:"close"`
	} `json:"candles"`
}

// Quote fetches the latest quote for symbol.
func (s *HTTPSource) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	raw, err := s.breaker.Execute(func() (interface{}, error) {
		var out quoteResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetResult(&out).
			SetPathParam("symbol", symbol).
			Get("/v1/quotes/{symbol}")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("quote %s: status %d", symbol, resp.StatusCode())
		}
		return &out, nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}

	q := raw.(*quoteResponse)
	return Quote{
		Symbol:    symbol,
		Price:     q.Price,
		ChangePct: q.ChangePct,
		Volume:    q.Volume,
		Timestamp: time.Unix(q.Timestamp, 0).UTC(),
	}, nil
}

// DailyReturns fetches up to days of daily closes for symbol and derives
// close-over-close returns, oldest first.
func (s *HTTPSource) DailyReturns(ctx context.Context, symbol string, days int) ([]ReturnPoint, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := s.breaker.Execute(func() (interface{}, error) {
		var out candleResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetResult(&out).
			SetPathParam("symbol", symbol).
			SetQueryParam("days", fmt.Sprintf("%d", days)).
			Get("/v1/candles/{symbol}")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("candles %s: status %d", symbol, resp.StatusCode())
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s: %w", symbol, err)
	}

	candles := raw.(*candleResponse).Candles
	points := make([]ReturnPoint, 0, len(candles))
	for _, c := range candles {
		date, err := time.Parse("2006-01-02", c.Date)
		if err != nil {
			continue
		}
		points = append(points, ReturnPoint{Date: date, Close: c.Close})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	for i := 1; i < len(points); i++ {
		prev := points[i-1].Close
		if prev > 0 {
			points[i].Return = (points[i].Close - prev) / prev
		}
	}
	if len(points) > 0 {
		points = points[1:] // first close has no prior to return against
	}
	return points, nil
}

// DailyVol is the root mean square of the given daily returns. Zero when
// the series is empty.
func DailyVol(points []ReturnPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Return * p.Return
	}
	return math.Sqrt(sum / float64(len(points)))
}

// AnnualizedVol scales a daily volatility by sqrt(252).
func AnnualizedVol(dailyVol float64) float64 {
	return dailyVol * math.Sqrt(252)
}
