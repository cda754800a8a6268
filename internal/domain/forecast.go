package domain

import (
	"time"
)

// Outlook is the directional call a producer makes on the market.
type Outlook string

const (
	OutlookBearish Outlook = "bearish"
	OutlookNeutral Outlook = "neutral"
	OutlookBullish Outlook = "bullish"
)

// Outlooks lists the three buckets in canonical order. Consensus scoring
// iterates this slice so that winner selection is deterministic.
var Outlooks = []Outlook{OutlookBearish, OutlookNeutral, OutlookBullish}

// Valid reports whether o is one of the three known outlooks.
func (o Outlook) Valid() bool {
	switch o {
	case OutlookBearish, OutlookNeutral, OutlookBullish:
		return true
	}
	return false
}

// Timeframe is the horizon a forecast is declared over.
type Timeframe string

const (
	TimeframeWeek    Timeframe = "1week"
	TimeframeMonth   Timeframe = "1month"
	TimeframeQuarter Timeframe = "3month"
	TimeframeYear    Timeframe = "1year"
)

// TradingDays maps a timeframe to the forward window, in trading days,
// used for outcome attribution.
func (t Timeframe) TradingDays() int {
	switch t {
	case TimeframeWeek:
		return 5
	case TimeframeMonth:
		return 21
	case TimeframeQuarter:
		return 63
	case TimeframeYear:
		return 252
	default:
		return 5
	}
}

// Forecast is one producer's opinion. Immutable once created.
type Forecast struct {
	ProducerID          string                 `json:"producer_id" db:"producer_id"`
	Timestamp           time.Time              `json:"timestamp" db:"ts"`
	Outlook             Outlook                `json:"outlook" db:"outlook"`
	Confidence          float64                `json:"confidence" db:"confidence"`
	Timeframe           Timeframe              `json:"timeframe" db:"timeframe"`
	SpecificPredictions map[string]interface{} `json:"specific_predictions,omitempty"`
	Reasoning           string                 `json:"reasoning" db:"reasoning"`
	KeyFactors          []string               `json:"key_factors,omitempty"`
	Uncertainties       []string               `json:"uncertainties,omitempty"`
	DataSources         []string               `json:"data_sources,omitempty"`
}

// PredictionFloat reads a float-valued specific prediction, tolerating the
// numeric types JSON decoding produces.
func (f *Forecast) PredictionFloat(key string) (float64, bool) {
	if f == nil || f.SpecificPredictions == nil {
		return 0, false
	}
	switch v := f.SpecificPredictions[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// PredictionFloatMap reads a map of float-valued specific predictions,
// e.g. per-position risk scores.
func (f *Forecast) PredictionFloatMap(key string) map[string]float64 {
	if f == nil || f.SpecificPredictions == nil {
		return nil
	}
	out := make(map[string]float64)
	switch m := f.SpecificPredictions[key].(type) {
	case map[string]float64:
		for k, v := range m {
			out[k] = v
		}
	case map[string]interface{}:
		for k, raw := range m {
			switch v := raw.(type) {
			case float64:
				out[k] = v
			case float32:
				out[k] = float64(v)
			case int:
				out[k] = float64(v)
			}
		}
	default:
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ProducerResult wraps the outcome of one producer invocation.
type ProducerResult struct {
	Success   bool      `json:"success"`
	Forecast  *Forecast `json:"forecast,omitempty"`
	Err       string    `json:"error,omitempty"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// Succeeded builds a successful result around a forecast.
func Succeeded(f *Forecast) *ProducerResult {
	return &ProducerResult{Success: true, Forecast: f, Timestamp: time.Now().UTC()}
}

// Failed builds a failed result carrying a best-effort error string.
func Failed(reason string) *ProducerResult {
	return &ProducerResult{Success: false, Err: reason, Timestamp: time.Now().UTC()}
}

// Conflict describes a disagreement between producer groups. Descriptive
// metadata only; it never alters the numeric consensus.
type Conflict struct {
	Type       string   `json:"type"`
	Bearish    []string `json:"bearish,omitempty"`
	Bullish    []string `json:"bullish,omitempty"`
	Resolution string   `json:"resolution"`
}

// AggregatedInsight is the consensus produced once per run. Immutable after
// creation.
type AggregatedInsight struct {
	Timestamp            time.Time            `json:"timestamp"`
	OverallOutlook       Outlook              `json:"overall_outlook"`
	Confidence           float64              `json:"confidence"`
	AgentOutputs         map[string]*Forecast `json:"agent_outputs"`
	Conflicts            []Conflict           `json:"conflicts"`
	ResolutionReasoning  string               `json:"resolution_reasoning"`
	FinalRecommendations []string             `json:"final_recommendations"`
	Vetoed               bool                 `json:"vetoed"`
	VetoReason           string               `json:"veto_reason,omitempty"`
}
