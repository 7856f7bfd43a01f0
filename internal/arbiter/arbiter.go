// Package arbiter keeps the ownership table that stops two queries from silently binding
// the same entity.
//
// The table is a side map (data id => bindings) so the trait store never learns about
// query semantics. Every binding is recorded, ReadOnly ones included, so any bound slot
// can be traced back to its ownership record.
package arbiter

import (
	"slices"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Binding is one query's claim on a data id.
type Binding struct {
	Owner       query.QueryMatchID
	Exclusivity query.Exclusivity
}

// Arbiter is not safe for concurrent use; it is only touched from the pipeline goroutine.
type Arbiter struct {
	owners map[traits.DataID][]Binding
	// reverse index: owner => data ids it binds
	claims map[query.QueryMatchID][]traits.DataID
}

func New() *Arbiter {
	return &Arbiter{
		owners: make(map[traits.DataID][]Binding),
		claims: make(map[query.QueryMatchID][]traits.DataID),
	}
}

// Available reports whether id may bind dataID with exclusivity e given the bindings
// held by other queries:
//   - no other binding: available;
//   - another query binds it Exclusive: unavailable;
//   - id asks for Exclusive while anyone else binds it: unavailable;
//   - otherwise Shared and ReadOnly bindings coexist.
func (a *Arbiter) Available(dataID traits.DataID, id query.QueryMatchID, e query.Exclusivity) bool {
	for _, b := range a.owners[dataID] {
		if b.Owner == id {
			continue
		}
		if b.Exclusivity == query.Exclusive || e == query.Exclusive {
			return false
		}
	}
	return true
}

// Claim records that id binds dataID. Claiming twice updates the exclusivity. The caller
// is expected to have checked Available.
func (a *Arbiter) Claim(dataID traits.DataID, id query.QueryMatchID, e query.Exclusivity) {
	bindings := a.owners[dataID]
	for i := range bindings {
		if bindings[i].Owner == id {
			bindings[i].Exclusivity = e
			return
		}
	}
	a.owners[dataID] = append(bindings, Binding{Owner: id, Exclusivity: e})
	a.claims[id] = append(a.claims[id], dataID)
}

// Release drops id's binding on dataID. It returns false when there was none.
func (a *Arbiter) Release(dataID traits.DataID, id query.QueryMatchID) bool {
	bindings := a.owners[dataID]
	idx := slices.IndexFunc(bindings, func(b Binding) bool { return b.Owner == id })
	if idx < 0 {
		return false
	}

	bindings = slices.Delete(bindings, idx, idx+1)
	if len(bindings) == 0 {
		delete(a.owners, dataID)
	} else {
		a.owners[dataID] = bindings
	}

	claimed := a.claims[id]
	if i := slices.Index(claimed, dataID); i >= 0 {
		claimed = slices.Delete(claimed, i, i+1)
	}
	if len(claimed) == 0 {
		delete(a.claims, id)
	} else {
		a.claims[id] = claimed
	}
	return true
}

// ReleaseAll drops every binding held by id and returns how many there were.
func (a *Arbiter) ReleaseAll(id query.QueryMatchID) int {
	claimed := slices.Clone(a.claims[id])
	for _, dataID := range claimed {
		a.Release(dataID, id)
	}
	return len(claimed)
}

// Owns reports whether id holds a binding on dataID.
func (a *Arbiter) Owns(dataID traits.DataID, id query.QueryMatchID) bool {
	return slices.ContainsFunc(a.owners[dataID], func(b Binding) bool { return b.Owner == id })
}

// Bindings returns a copy of the bindings on dataID.
func (a *Arbiter) Bindings(dataID traits.DataID) []Binding {
	return slices.Clone(a.owners[dataID])
}

// Len returns the number of data ids with at least one binding.
func (a *Arbiter) Len() int {
	return len(a.owners)
}

// Clear drops every binding.
func (a *Arbiter) Clear() {
	clear(a.owners)
	clear(a.claims)
}
