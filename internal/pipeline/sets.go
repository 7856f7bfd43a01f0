package pipeline

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// setSearch is the state of one bounded depth-first search over member candidates.
type setSearch struct {
	p          *Pipeline
	set        *registry.Set
	candidates [][]traits.DataID
	choice     []traits.DataID
	attempts   int
	exhausted  bool
}

// setScore is the mean top score of the members that have proposals. ok is false when
// a required member has none, in which case the set cannot match this tick.
func (p *Pipeline) setScore(set *registry.Set) (float64, bool) {
	var sum float64
	var n int
	for pos, slot := range set.Slots {
		if len(p.reg.Proposals[slot]) == 0 || !p.reg.TraitCaches[slot].Fulfilled {
			if set.Required(pos) {
				return 0, false
			}
			continue
		}
		sum += p.top(slot)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// setStillMatches reports whether the committed match of set survives this tick: every
// bound member is still proposed its data and every relation between bound members
// still passes.
func (p *Pipeline) setStillMatches(set *registry.Set) bool {
	for pos, slot := range set.Slots {
		bound := p.reg.BestMatch[slot]
		if bound == traits.Unassigned {
			if set.Required(pos) {
				return false
			}
			continue
		}
		if !p.reg.TraitCaches[slot].Fulfilled {
			return false
		}
		if _, ok := slices.BinarySearch(p.reg.Proposals[slot], bound); !ok {
			return false
		}
	}

	for _, rel := range set.Relations {
		a, b := p.reg.BestMatch[set.Slots[rel.A]], p.reg.BestMatch[set.Slots[rel.B]]
		if a == traits.Unassigned || b == traits.Unassigned {
			continue
		}
		if !p.relationPasses(rel, a, b) {
			return false
		}
	}
	return true
}

func (p *Pipeline) releaseSet(set *registry.Set) {
	for _, slot := range set.Slots {
		p.reg.Release(slot)
	}
	set.Bound = false
}

// relationPasses rates rel on the current trait values of a and b.
func (p *Pipeline) relationPasses(rel registry.BoundRelation, a, b traits.DataID) bool {
	va, ok := p.store.TryGetTrait(a, rel.ReqA.Name)
	if !ok || !rel.ReqA.Satisfies(va) {
		return false
	}
	vb, ok := p.store.TryGetTrait(b, rel.ReqB.Name)
	if !ok || !rel.ReqB.Satisfies(vb) {
		return false
	}
	return query.Passes(query.Clamp(rel.Relation.RateDataMatch(va, vb)))
}

// resolveSet searches the member candidates, in rank order, for the first combination
// of distinct available data ids on which every relation between bound members passes.
// The combination is committed for all members at once, or not at all.
func (p *Pipeline) resolveSet(ctx context.Context, idx int) bool {
	set := &p.reg.Sets[idx]
	arb := p.reg.Arbiter()

	s := &setSearch{
		p:          p,
		set:        set,
		candidates: make([][]traits.DataID, len(set.Slots)),
		choice:     make([]traits.DataID, len(set.Slots)),
	}

	for pos, slot := range set.Slots {
		s.choice[pos] = traits.Unassigned
		if !p.reg.TraitCaches[slot].Fulfilled {
			continue
		}

		ranked := p.rank(nil, slot, p.setCandidateLimit)
		id, exclusivity := p.reg.IDs[slot], p.reg.Exclusivities[slot]
		available := ranked[:0]
		for _, dataID := range ranked {
			if arb.Available(dataID, id, exclusivity) {
				available = append(available, dataID)
			}
		}
		s.candidates[pos] = available

		if len(available) == 0 && set.Required(pos) {
			return false
		}
	}

	if !s.search(0) {
		if s.exhausted {
			setAttemptsExhaustedCounter.Inc()
			p.logger.DebugWithContext(ctx, "set resolution ran out of attempts",
				zap.Stringer("query_match_id", set.ID),
				zap.Int("attempts", s.attempts))
		}
		return false
	}

	for pos, slot := range set.Slots {
		if dataID := s.choice[pos]; dataID != traits.Unassigned {
			p.reg.Bind(slot, dataID)
		}
	}
	set.Bound = true
	return true
}

// search assigns members from pos onwards. Optional members are tried unbound last.
func (s *setSearch) search(pos int) bool {
	if pos == len(s.choice) {
		return true
	}

	for _, dataID := range s.candidates[pos] {
		if slices.Contains(s.choice[:pos], dataID) {
			continue
		}
		s.choice[pos] = dataID
		if s.consistent(pos) && s.search(pos+1) {
			return true
		}
		if s.exhausted {
			s.choice[pos] = traits.Unassigned
			return false
		}
	}

	s.choice[pos] = traits.Unassigned
	if !s.set.Required(pos) {
		return s.search(pos + 1)
	}
	return false
}

// consistent checks the relations closed by binding pos: those whose other member is
// already decided and bound.
func (s *setSearch) consistent(pos int) bool {
	for _, rel := range s.set.Relations {
		if max(rel.A, rel.B) != pos {
			continue
		}
		a, b := s.choice[rel.A], s.choice[rel.B]
		if a == traits.Unassigned || b == traits.Unassigned {
			continue
		}
		if s.attempts >= s.p.setAttemptLimit {
			s.exhausted = true
			return false
		}
		s.attempts++
		if !s.p.relationPasses(rel, a, b) {
			return false
		}
	}
	return true
}
