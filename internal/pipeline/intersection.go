package pipeline

import (
	"slices"

	"github.com/proxima-xr/scenematch/pkg/query"
)

// intersect turns the ratings of every freshly rated slot into its raw proposals: the
// data ids passing every condition, in ascending order. The smallest rating map is
// walked and looked up in the others.
func (p *Pipeline) intersect() {
	for _, slot := range p.stale {
		ratings := p.reg.Ratings[slot]
		raw := p.reg.RawProposals[slot][:0]

		smallest := 0
		for i := range ratings {
			if len(ratings[i]) < len(ratings[smallest]) {
				smallest = i
			}
		}

	candidates:
		for dataID, rating := range ratings[smallest] {
			if !query.Passes(rating) {
				continue
			}
			for i, other := range ratings {
				if i == smallest {
					continue
				}
				if r, ok := other[dataID]; !ok || !query.Passes(r) {
					continue candidates
				}
			}
			raw = append(raw, dataID)
		}

		slices.Sort(raw)
		p.reg.RawProposals[slot] = raw
	}
}
