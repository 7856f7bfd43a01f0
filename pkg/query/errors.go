package query

import (
	"errors"

	"github.com/proxima-xr/scenematch/pkg/traits"
)

var (
	ErrAlreadyRegistered  = errors.New("query match id is already registered")
	ErrNotFound           = errors.New("query match id not found")
	ErrNoConditions       = errors.New("query declares no conditions")
	ErrNoMembers          = errors.New("set query declares no members")
	ErrDuplicateMember    = errors.New("set member name is declared twice")
	ErrInvalidExclusivity = errors.New("invalid exclusivity")
	ErrInvalidRelation    = errors.New("invalid relation")
	ErrUnknownMember      = errors.New("relation references an unknown set member")
	ErrNilCondition       = errors.New("condition is nil")

	// ErrInvalidRequirement aliases the trait package sentinel so callers only need this package.
	ErrInvalidRequirement = traits.ErrInvalidRequirement
)
