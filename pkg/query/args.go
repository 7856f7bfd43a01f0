package query

import (
	"fmt"
	"time"
)

// Handlers are the lifecycle callbacks of a standalone query. Any of them may be nil.
// Results passed to handlers are copies owned by the callee.
type Handlers struct {
	OnAcquire func(Result)
	OnUpdate  func(Result)
	OnLoss    func(Result)
	OnTimeout func(Args)
}

// Args describes a standalone query.
type Args struct {
	// Conditions must all pass for a data id to be proposed.
	Conditions []Condition

	Exclusivity Exclusivity

	// ReacquireOnLoss sends the query back to searching after its data is lost.
	ReacquireOnLoss bool

	// Timeout halts the search when no match is tracked within it. Zero disables it.
	Timeout time.Duration

	// SearchInterval limits how often a searching query is re-evaluated. Zero means
	// every tick.
	SearchInterval time.Duration

	Handlers Handlers
}

// Validate checks that a and its conditions can be registered.
func (a *Args) Validate() error {
	if len(a.Conditions) == 0 {
		return ErrNoConditions
	}
	if !a.Exclusivity.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidExclusivity, a.Exclusivity)
	}
	for i, c := range a.Conditions {
		if c == nil {
			return fmt.Errorf("%w: condition %d", ErrNilCondition, i)
		}
		if err := c.Requirement().Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	if a.Timeout < 0 || a.SearchInterval < 0 {
		return fmt.Errorf("negative timeout or search interval")
	}
	return nil
}

// Member is one named slot of a set query.
type Member struct {
	Name        string
	Conditions  []Condition
	Exclusivity Exclusivity

	// Required members must be bound for the set to match. Optional members are bound
	// when possible.
	Required bool
}

// SetHandlers are the lifecycle callbacks of a set query.
type SetHandlers struct {
	OnAcquire func(SetResult)
	OnUpdate  func(SetResult)
	OnLoss    func(SetResult)
	OnTimeout func(SetArgs)
}

// SetArgs describes a set query: members bound together subject to relations.
type SetArgs struct {
	Members   []Member
	Relations []Relation

	ReacquireOnLoss bool
	Timeout         time.Duration
	SearchInterval  time.Duration

	Handlers SetHandlers
}

// Validate checks the members of s. Relations are validated separately at registration
// so a malformed relation only excludes itself.
func (s *SetArgs) Validate() error {
	if len(s.Members) == 0 {
		return ErrNoMembers
	}
	required := 0
	seen := make(map[string]struct{}, len(s.Members))
	for _, m := range s.Members {
		if m.Name == "" {
			return fmt.Errorf("set member with empty name")
		}
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("%w: '%s'", ErrDuplicateMember, m.Name)
		}
		seen[m.Name] = struct{}{}

		args := m.Args()
		if err := args.Validate(); err != nil {
			return fmt.Errorf("member '%s': %w", m.Name, err)
		}
		if m.Required {
			required++
		}
	}
	if required == 0 {
		return fmt.Errorf("%w: at least one member must be required", ErrNoMembers)
	}
	if s.Timeout < 0 || s.SearchInterval < 0 {
		return fmt.Errorf("negative timeout or search interval")
	}
	return nil
}

// Args returns the standalone arguments equivalent to m, used for the member's slot.
func (m Member) Args() Args {
	return Args{
		Conditions:  m.Conditions,
		Exclusivity: m.Exclusivity,
	}
}

// MemberIndex returns the position of the named member, or -1.
func (s *SetArgs) MemberIndex(name string) int {
	for i, m := range s.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}
