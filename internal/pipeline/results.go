package pipeline

import (
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// fillResults copies the current trait values of every bound working slot into its
// result map. Running it twice on the same binding yields the same result.
func (p *Pipeline) fillResults() {
	for _, slot := range p.working {
		dataID := p.reg.BestMatch[slot]
		if dataID == traits.Unassigned {
			continue
		}
		p.fillResult(slot, dataID)
	}
}

func (p *Pipeline) fillResult(slot int, dataID traits.DataID) {
	result := p.reg.Results[slot]
	clear(result)
	for _, req := range p.reg.Requirements[slot] {
		if v, ok := p.store.TryGetTrait(dataID, req.Name); ok && req.Satisfies(v) {
			result[req.Name] = v
		}
	}
}
