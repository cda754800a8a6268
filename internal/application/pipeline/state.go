package pipeline

import (
	"time"

	"github.com/mossriver/alphacouncil/internal/domain"
)

// State is the accumulated record of one run. It is owned by the
// orchestrator goroutine; producers never touch it directly, they return
// deltas that are merged in fan-in order.
type State struct {
	RunID           string                            `json:"run_id"`
	StartedAt       time.Time                         `json:"started_at"`
	CompletedAt     time.Time                         `json:"completed_at"`
	CurrentPhase    string                            `json:"current_phase"`
	ProducerResults map[string]*domain.ProducerResult `json:"producer_results"`
	Vetoed          bool                              `json:"vetoed"`
	VetoReason      string                            `json:"veto_reason,omitempty"`
	Consensus       *domain.AggregatedInsight         `json:"consensus,omitempty"`
	SizedOrders     []domain.Order                    `json:"sized_orders,omitempty"`
	Errors          []string                          `json:"errors,omitempty"`
}

func newState(runID string) *State {
	return &State{
		RunID:           runID,
		StartedAt:       time.Now().UTC(),
		ProducerResults: make(map[string]*domain.ProducerResult),
	}
}

// delta is one producer's contribution, merged additively into the state.
type delta struct {
	producerID string
	result     *domain.ProducerResult
}

func (s *State) apply(d delta) {
	s.ProducerResults[d.producerID] = d.result
	if !d.result.Success && d.result.Err != "" {
		s.Errors = append(s.Errors, d.producerID+": "+d.result.Err)
	}
}

// SuccessCount reports how many producers returned a usable forecast.
func (s *State) SuccessCount() int {
	var n int
	for _, r := range s.ProducerResults {
		if r != nil && r.Success {
			n++
		}
	}
	return n
}
