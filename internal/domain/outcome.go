package domain

import "time"

// Regime classifies the trailing market environment. Context for the
// learning loop, never a gate.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeSideways Regime = "sideways"
	RegimeHighVol  Regime = "high_volatility"
	RegimeLowVol   Regime = "low_volatility"
)

// PredictionOutcome links a past forecast to the realized forward return
// over its declared timeframe. Immutable once computed.
type PredictionOutcome struct {
	PredictionID        int64     `json:"prediction_id" db:"prediction_id"`
	ProducerID          string    `json:"producer_id" db:"producer_id"`
	Symbol              string    `json:"symbol" db:"symbol"`
	PredictedOutlook    Outlook   `json:"predicted_outlook" db:"predicted_outlook"`
	PredictedConfidence float64   `json:"predicted_confidence" db:"predicted_confidence"`
	PredictionDate      time.Time `json:"prediction_date" db:"prediction_date"`
	TargetDate          time.Time `json:"target_date" db:"target_date"`
	ActualReturn        float64   `json:"actual_return" db:"actual_return"`
	ActualDirection     Outlook   `json:"actual_direction" db:"actual_direction"`
	WasCorrect          bool      `json:"was_correct" db:"was_correct"`
	AttributionScore    float64   `json:"attribution_score" db:"attribution_score"`
	Regime              Regime    `json:"regime" db:"regime"` // regime at prediction time
}
