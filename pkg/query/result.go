package query

import (
	"maps"

	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Result is the bundle of trait values resolved for a bound query.
type Result struct {
	ID     QueryMatchID
	DataID traits.DataID
	Values map[string]traits.Value
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	return Result{
		ID:     r.ID,
		DataID: r.DataID,
		Values: maps.Clone(r.Values),
	}
}

// Get returns the named trait value of the result.
func (r Result) Get(name string) (traits.Value, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// SetResult bundles the results of every bound member of a set, keyed by member name.
// Unbound optional members are absent.
type SetResult struct {
	ID      QueryMatchID
	Members map[string]Result
}

// Clone returns a deep copy of r.
func (r SetResult) Clone() SetResult {
	out := SetResult{ID: r.ID, Members: make(map[string]Result, len(r.Members))}
	for name, m := range r.Members {
		out.Members[name] = m.Clone()
	}
	return out
}
