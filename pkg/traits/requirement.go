package traits

import (
	"errors"
	"fmt"
)

// ErrInvalidRequirement is returned when a trait requirement has no name or an unsupported kind.
var ErrInvalidRequirement = errors.New("invalid trait requirement")

// Requirement is a (trait name, value kind) pair declared by a condition or a relation.
type Requirement struct {
	Name string
	Kind Kind
}

func (r Requirement) String() string {
	return r.Name + ":" + r.Kind.String()
}

// Validate checks the requirement can be resolved against a store.
func (r Requirement) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty trait name", ErrInvalidRequirement)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: trait '%s' has unsupported kind %s", ErrInvalidRequirement, r.Name, r.Kind)
	}
	return nil
}

// Satisfies reports whether v can be rated by something requiring r.
func (r Requirement) Satisfies(v Value) bool {
	return v.Kind() == r.Kind
}
