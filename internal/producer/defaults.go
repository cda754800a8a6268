package producer

import "fmt"

// remoteIDs are the producers served by the external forecast service.
var remoteIDs = []string{
	"macro",
	"geopolitical",
	"commodities",
	"sentiment",
	"fundamentals",
	"alternative_data",
	"cross_asset",
	"event_driven",
}

// DefaultRegistry enumerates every known producer. The technical and risk
// producers run locally; the rest call out to the forecast service.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, id := range remoteIDs {
		id := id
		_ = r.Register(id, func(deps Deps) (Producer, error) {
			if deps.Remote == nil {
				return nil, fmt.Errorf("producer %q needs a forecast service client", id)
			}
			return NewRemote(id, deps.Remote), nil
		})
	}

	_ = r.Register("technical", func(deps Deps) (Producer, error) {
		if deps.Market == nil {
			return nil, fmt.Errorf("technical producer needs a market source")
		}
		return NewTechnical(deps.Market, deps.Benchmark), nil
	})

	_ = r.Register("risk", func(deps Deps) (Producer, error) {
		if deps.Market == nil {
			return nil, fmt.Errorf("risk producer needs a market source")
		}
		return NewRisk(deps.Market, deps.Benchmark, deps.Limits, deps.Portfolio), nil
	})

	return r
}
