package query

import "fmt"

// Exclusivity governs whether the data bound by a query may also be bound by others.
type Exclusivity uint8

const (
	// ReadOnly binds data without excluding anyone except Exclusive claimers.
	ReadOnly Exclusivity = iota
	// Shared binds data that other ReadOnly or Shared queries may also bind.
	Shared
	// Exclusive binds data that no other live query may bind.
	Exclusive
)

func (e Exclusivity) String() string {
	switch e {
	case ReadOnly:
		return "readonly"
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	}
	return fmt.Sprintf("exclusivity(%d)", uint8(e))
}

func (e Exclusivity) Valid() bool {
	return e <= Exclusive
}

// ParseExclusivity maps the textual form used in scene files.
func ParseExclusivity(s string) (Exclusivity, error) {
	switch s {
	case "readonly", "read-only", "":
		return ReadOnly, nil
	case "shared":
		return Shared, nil
	case "exclusive", "reserved":
		return Exclusive, nil
	}
	return ReadOnly, fmt.Errorf("%w: '%s'", ErrInvalidExclusivity, s)
}
