package registry

import (
	"github.com/proxima-xr/scenematch/internal/statemachine"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// BoundRelation is a relation whose children were resolved to member positions.
type BoundRelation struct {
	Relation query.Relation
	// A and B index Set.Slots.
	A, B       int
	ReqA, ReqB traits.Requirement
}

// Set is one registered set query. Its members live in the slot columns.
type Set struct {
	ID         query.QueryMatchID
	Live       bool
	Generation uint32

	Args      query.SetArgs
	Slots     []int
	Relations []BoundRelation

	Machine statemachine.Machine

	// Bound is true while a committed match is held for the set.
	Bound bool
	// Reported is the result last delivered to handlers, used to describe a loss.
	Reported query.SetResult
}

// Required reports whether the member at position pos must be bound.
func (s *Set) Required(pos int) bool {
	return s.Args.Members[pos].Required
}

// MemberName returns the name of the member at position pos.
func (s *Set) MemberName(pos int) string {
	return s.Args.Members[pos].Name
}
