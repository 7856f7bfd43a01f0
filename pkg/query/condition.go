package query

import (
	"fmt"
	"math"

	"github.com/proxima-xr/scenematch/pkg/traits"
)

// MinimumPassingRating is the lowest rating that still passes a condition or relation.
// A rating of exactly zero always fails.
const MinimumPassingRating = 0.01

// Clamp maps any rating into [0,1]. NaN rates zero.
func Clamp(rating float64) float64 {
	switch {
	case math.IsNaN(rating), rating <= 0:
		return 0
	case rating >= 1:
		return 1
	}
	return rating
}

// Passes reports whether a rating meets MinimumPassingRating.
func Passes(rating float64) bool {
	return rating >= MinimumPassingRating
}

// Condition is a predicate over one trait. RateDataMatch must be deterministic for a
// given value and return a rating in [0,1]; out of range ratings are clamped.
type Condition interface {
	Requirement() traits.Requirement
	RateDataMatch(value traits.Value) float64
}

// Relation rates the pair of values bound to two different set members. Requirements
// must return exactly two entries: the trait read on the first child and on the second.
type Relation interface {
	Children() (string, string)
	Requirements() []traits.Requirement
	RateDataMatch(a, b traits.Value) float64
}

// ValidateRelation checks the arity and requirements of r.
func ValidateRelation(r Relation) error {
	if r == nil {
		return fmt.Errorf("%w: nil relation", ErrInvalidRelation)
	}
	reqs := r.Requirements()
	if len(reqs) != 2 {
		return fmt.Errorf("%w: declares %d trait requirements, want 2", ErrInvalidRelation, len(reqs))
	}
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRelation, err)
		}
	}
	a, b := r.Children()
	if a == "" || b == "" || a == b {
		return fmt.Errorf("%w: children '%s' and '%s' must be two distinct members", ErrInvalidRelation, a, b)
	}
	return nil
}

type conditionFunc[T traits.Type] struct {
	req  traits.Requirement
	rate func(T) float64
}

// NewCondition adapts a typed rating function over trait into a Condition.
func NewCondition[T traits.Type](trait string, rate func(T) float64) Condition {
	return &conditionFunc[T]{
		req:  traits.Requirement{Name: trait, Kind: traits.KindOf[T]()},
		rate: rate,
	}
}

func (c *conditionFunc[T]) Requirement() traits.Requirement {
	return c.req
}

func (c *conditionFunc[T]) RateDataMatch(value traits.Value) float64 {
	x, ok := traits.As[T](value)
	if !ok {
		return 0
	}
	return c.rate(x)
}

type relationFunc[A, B traits.Type] struct {
	childA, childB string
	reqs           []traits.Requirement
	rate           func(A, B) float64
}

// NewRelation adapts a typed pair rating function into a Relation between childA's
// traitA and childB's traitB.
func NewRelation[A, B traits.Type](childA, traitA, childB, traitB string, rate func(A, B) float64) Relation {
	return &relationFunc[A, B]{
		childA: childA,
		childB: childB,
		reqs: []traits.Requirement{
			{Name: traitA, Kind: traits.KindOf[A]()},
			{Name: traitB, Kind: traits.KindOf[B]()},
		},
		rate: rate,
	}
}

func (r *relationFunc[A, B]) Children() (string, string) {
	return r.childA, r.childB
}

func (r *relationFunc[A, B]) Requirements() []traits.Requirement {
	return r.reqs
}

func (r *relationFunc[A, B]) RateDataMatch(a, b traits.Value) float64 {
	x, ok := traits.As[A](a)
	if !ok {
		return 0
	}
	y, ok := traits.As[B](b)
	if !ok {
		return 0
	}
	return r.rate(x, y)
}
