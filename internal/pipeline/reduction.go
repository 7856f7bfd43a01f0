package pipeline

import (
	"fmt"
	"math"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Reducer combines the per-condition ratings of one candidate into a single score.
// Every reducer returns at most the lowest individual rating.
type Reducer uint8

const (
	// ReducerMin scores a candidate by its weakest condition.
	ReducerMin Reducer = iota
	// ReducerProduct multiplies the ratings, penalizing candidates that are mediocre
	// on several conditions.
	ReducerProduct
)

func (r Reducer) String() string {
	switch r {
	case ReducerMin:
		return "min"
	case ReducerProduct:
		return "product"
	}
	return "invalid"
}

// ParseReducer returns the reducer named s.
func ParseReducer(s string) (Reducer, error) {
	switch s {
	case "min", "":
		return ReducerMin, nil
	case "product":
		return ReducerProduct, nil
	}
	return ReducerMin, fmt.Errorf("unknown reducer '%s'", s)
}

// Reduce combines ratings. An empty input scores 0.
func (r Reducer) Reduce(ratings []float64) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var out float64
	switch r {
	case ReducerProduct:
		out = 1
		for _, rating := range ratings {
			out *= rating
		}
	default:
		out = math.Inf(1)
		for _, rating := range ratings {
			out = min(out, rating)
		}
	}
	return query.Clamp(out)
}

// reduce scores every proposal of every fulfilled slot.
func (p *Pipeline) reduce() {
	for _, slot := range p.fulfilled {
		reduced := p.reg.Reduced[slot]
		clear(reduced)

		kept := p.reg.Proposals[slot][:0]
		for _, dataID := range p.reg.Proposals[slot] {
			p.values = p.values[:0]
			for _, ratings := range p.reg.Ratings[slot] {
				p.values = append(p.values, ratings[dataID])
			}
			score := p.reducer.Reduce(p.values)
			if !query.Passes(score) {
				continue
			}
			reduced[dataID] = score
			kept = append(kept, dataID)
		}
		p.reg.Proposals[slot] = kept
	}
}

// top returns the best reduced score of slot, or 0 without proposals.
func (p *Pipeline) top(slot int) float64 {
	best := 0.0
	for _, dataID := range p.reg.Proposals[slot] {
		best = max(best, p.reg.Reduced[slot][dataID])
	}
	return best
}

// rank fills dst with the proposals of slot ordered by score, highest first, then by
// ascending data id. At most limit ids are kept when limit is positive.
func (p *Pipeline) rank(dst []traits.DataID, slot, limit int) []traits.DataID {
	dst = append(dst[:0], p.reg.Proposals[slot]...)
	reduced := p.reg.Reduced[slot]
	sortByScore(dst, reduced)
	if limit > 0 && len(dst) > limit {
		dst = dst[:limit]
	}
	return dst
}
