package scene

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks the whole scene and reports every problem found, each wrapping
// ErrInvalidScene. CEL expressions are compiled.
func (s *Scene) Validate() error {
	var errs []error
	report := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidScene}, args...)...))
	}

	if s.Ticks < 0 {
		report("ticks cannot be negative")
	}

	entities := make(map[int64]struct{}, len(s.Entities))
	for i, e := range s.Entities {
		if e.ID < 0 {
			report("entity %d: id cannot be negative", i)
		}
		if _, ok := entities[e.ID]; ok {
			report("entity %d: id %d is declared twice", i, e.ID)
		}
		entities[e.ID] = struct{}{}

		if e.Appear < 0 {
			report("entity %d: appear cannot be negative", e.ID)
		}
		if e.Disappear != 0 && e.Disappear <= e.Appear {
			report("entity %d: disappear must be after appear", e.ID)
		}
		for name, v := range e.Traits {
			if _, err := v.Value(); err != nil {
				report("entity %d: trait '%s': %v", e.ID, name, err)
			}
		}
		for _, k := range e.Keyframes {
			if k.Tick < e.Appear || (e.Disappear != 0 && k.Tick >= e.Disappear) {
				report("entity %d: keyframe at tick %d is outside of its lifetime", e.ID, k.Tick)
			}
			for name, v := range k.Traits {
				if _, err := v.Value(); err != nil {
					report("entity %d: keyframe %d: trait '%s': %v", e.ID, k.Tick, name, err)
				}
			}
		}
	}

	ids := make([]int32, 0, len(s.Queries)+len(s.Sets))
	checkID := func(kind string, id int32) {
		if id <= 0 {
			report("%s %d: id must be positive", kind, id)
		}
		if slices.Contains(ids, id) {
			report("%s %d: id is declared twice", kind, id)
		}
		ids = append(ids, id)
	}

	for _, q := range s.Queries {
		checkID("query", q.ID)
		if _, err := q.Args(); err != nil {
			report("query %d: %v", q.ID, err)
		}
	}
	for _, set := range s.Sets {
		checkID("set", set.ID)
		if _, err := set.Args(); err != nil {
			report("set %d: %v", set.ID, err)
		}
	}

	return errors.Join(errs...)
}
