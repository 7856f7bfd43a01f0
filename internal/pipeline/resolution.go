package pipeline

import (
	"context"
	"slices"

	"github.com/emirpasic/gods/trees/binaryheap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// unit is one thing to resolve: an unbound standalone slot or an unbound set.
type unit struct {
	score float64
	id    query.QueryMatchID
	slot  int
	set   int
}

// byScoreThenID puts the unit with the best achievable score first. Equal scores go to
// the lower QueryMatchID.
func byScoreThenID(a, b interface{}) int {
	ua, ub := a.(unit), b.(unit)
	switch {
	case ua.score > ub.score:
		return -1
	case ua.score < ub.score:
		return 1
	}
	return ua.id.Compare(ub.id)
}

func sortByScore(ids []traits.DataID, scores map[traits.DataID]float64) {
	slices.SortFunc(ids, func(a, b traits.DataID) int {
		sa, sb := scores[a], scores[b]
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
}

// resolve picks the best match of every working slot and set. Bindings that are still
// proposed are kept. The rest compete in priority order, each one taking the best
// candidate the arbiter still grants.
func (p *Pipeline) resolve(ctx context.Context) {
	p.units = p.units[:0]

	for _, slot := range p.working {
		if p.reg.Owners[slot] != registry.NoSet || !p.reg.TraitCaches[slot].Fulfilled {
			continue
		}
		if bound := p.reg.BestMatch[slot]; bound != traits.Unassigned {
			if _, ok := slices.BinarySearch(p.reg.Proposals[slot], bound); ok {
				continue
			}
			// A lost binding is reported before the slot may search again.
			p.reg.Release(slot)
			continue
		}
		if len(p.reg.Proposals[slot]) > 0 {
			p.units = append(p.units, unit{score: p.top(slot), id: p.reg.IDs[slot], slot: slot, set: registry.NoSet})
		}
	}

	for _, idx := range p.workingSets {
		set := &p.reg.Sets[idx]
		if set.Bound {
			if p.setStillMatches(set) {
				continue
			}
			p.releaseSet(set)
			continue
		}
		if score, ok := p.setScore(set); ok {
			p.units = append(p.units, unit{score: score, id: set.ID, slot: -1, set: idx})
		}
	}

	if len(p.units) == 0 {
		return
	}

	heap := binaryheap.NewWith(byScoreThenID)
	for _, u := range p.units {
		heap.Push(u)
	}

	bound := 0
	for heap.Size() > 0 {
		v, _ := heap.Pop()
		u := v.(unit)
		if u.set != registry.NoSet {
			if p.resolveSet(ctx, u.set) {
				bound++
			}
			continue
		}
		if p.resolveSlot(u.slot) {
			bound++
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("units", len(p.units)),
		attribute.Int("bound", bound),
	)
}

// resolveSlot binds the best ranked candidate of slot the arbiter still allows.
func (p *Pipeline) resolveSlot(slot int) bool {
	arb := p.reg.Arbiter()
	id, exclusivity := p.reg.IDs[slot], p.reg.Exclusivities[slot]

	p.ranked = p.rank(p.ranked, slot, 0)
	for _, dataID := range p.ranked {
		if arb.Available(dataID, id, exclusivity) {
			p.reg.Bind(slot, dataID)
			return true
		}
	}
	return false
}
