package pipeline

import (
	"maps"
	"slices"

	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// SlotSnapshot is a copy of the intermediates of one live slot.
type SlotSnapshot struct {
	Slot int
	ID   query.QueryMatchID
	// SetID is the id of the owning set. It is the zero id for standalone queries.
	SetID  query.QueryMatchID
	Member string

	State       query.State
	Halted      bool
	Exclusivity query.Exclusivity
	Fulfilled   bool

	Ratings   []map[traits.DataID]float64
	Proposals []traits.DataID
	Reduced   map[traits.DataID]float64
	BestMatch traits.DataID
	Result    map[string]traits.Value
}

// SetSnapshot is a copy of the state of one live set.
type SetSnapshot struct {
	ID        query.QueryMatchID
	State     query.State
	Halted    bool
	Bound     bool
	Members   []string
	Slots     []int
	Relations int
}

// Snapshot describes the last tick: the slot indices each stage worked on, and a copy of
// every live slot and set.
type Snapshot struct {
	Tick uint64

	Working     []int
	WorkingSets []int
	Fulfilled   []int
	// Rated lists the slots rated from scratch; the others reused their ratings.
	Rated []int

	Slots []SlotSnapshot
	Sets  []SetSnapshot
}

// Snapshot copies the pipeline intermediates. It is meant for debugging and tests.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Tick:        p.tick,
		Working:     slices.Clone(p.working),
		WorkingSets: slices.Clone(p.workingSets),
		Fulfilled:   slices.Clone(p.fulfilled),
		Rated:       slices.Clone(p.stale),
	}

	for slot, live := range p.reg.Live {
		if !live {
			continue
		}

		ratings := make([]map[traits.DataID]float64, len(p.reg.Ratings[slot]))
		for i, m := range p.reg.Ratings[slot] {
			ratings[i] = maps.Clone(m)
		}

		snap := SlotSnapshot{
			Slot:        slot,
			ID:          p.reg.IDs[slot],
			State:       p.reg.Machines[slot].State,
			Halted:      p.reg.Machines[slot].Halted,
			Exclusivity: p.reg.Exclusivities[slot],
			Fulfilled:   p.reg.TraitCaches[slot].Fulfilled,
			Ratings:     ratings,
			Proposals:   slices.Clone(p.reg.Proposals[slot]),
			Reduced:     maps.Clone(p.reg.Reduced[slot]),
			BestMatch:   p.reg.BestMatch[slot],
			Result:      maps.Clone(p.reg.Results[slot]),
		}
		if owner := p.reg.Owners[slot]; owner != registry.NoSet {
			set := &p.reg.Sets[owner]
			snap.SetID = set.ID
			snap.Member = set.MemberName(slices.Index(set.Slots, slot))
		}
		s.Slots = append(s.Slots, snap)
	}

	for idx := range p.reg.Sets {
		set := &p.reg.Sets[idx]
		if !set.Live {
			continue
		}
		members := make([]string, len(set.Args.Members))
		for i, m := range set.Args.Members {
			members[i] = m.Name
		}
		s.Sets = append(s.Sets, SetSnapshot{
			ID:        set.ID,
			State:     set.Machine.State,
			Halted:    set.Machine.Halted,
			Bound:     set.Bound,
			Members:   members,
			Slots:     slices.Clone(set.Slots),
			Relations: len(set.Relations),
		})
	}

	return s
}
