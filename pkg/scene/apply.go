package scene

import (
	"fmt"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Writer is the write side of a trait store.
type Writer interface {
	Set(dataID traits.DataID, name string, value traits.Value)
	Remove(dataID traits.DataID, name string) bool
	RemoveData(dataID traits.DataID) int
}

// Registrar registers queries. *engine.Engine implements it.
type Registrar interface {
	NewID(queryID int32) query.QueryMatchID
	Register(id query.QueryMatchID, args query.Args) error
	RegisterSet(id query.QueryMatchID, args query.SetArgs) error
}

// Registration is a query or set registered from the scene.
type Registration struct {
	Name string
	ID   query.QueryMatchID
	Set  bool
}

// Register registers every query and set of the scene under a fresh match id of its
// query id. It stops at the first error.
func (s *Scene) Register(r Registrar) ([]Registration, error) {
	out := make([]Registration, 0, len(s.Queries)+len(s.Sets))

	for _, q := range s.Queries {
		args, err := q.Args()
		if err != nil {
			return out, fmt.Errorf("query %d: %w", q.ID, err)
		}
		id := r.NewID(q.ID)
		if err := r.Register(id, args); err != nil {
			return out, err
		}
		out = append(out, Registration{Name: q.Name, ID: id})
	}

	for _, set := range s.Sets {
		args, err := set.Args()
		if err != nil {
			return out, fmt.Errorf("set %d: %w", set.ID, err)
		}
		id := r.NewID(set.ID)
		if err := r.RegisterSet(id, args); err != nil {
			return out, err
		}
		out = append(out, Registration{Name: set.Name, ID: id, Set: true})
	}

	return out, nil
}

// Apply writes the changes scripted for tick into w: entities leaving are removed,
// entities appearing get their traits, then keyframes are applied. It returns the
// number of entities touched. Invalid values are skipped; Validate reports them.
func (s *Scene) Apply(w Writer, tick int) int {
	touched := 0
	for i := range s.Entities {
		e := &s.Entities[i]
		id := traits.DataID(e.ID)
		changed := false

		if e.Disappear != 0 && e.Disappear == tick {
			w.RemoveData(id)
			touched++
			continue
		}

		if e.Appear == tick {
			setAll(w, id, e.Traits)
			changed = true
		}

		for _, k := range e.Keyframes {
			if k.Tick != tick {
				continue
			}
			setAll(w, id, k.Traits)
			for _, name := range k.Remove {
				w.Remove(id, name)
			}
			changed = true
		}

		if changed {
			touched++
		}
	}
	return touched
}

func setAll(w Writer, id traits.DataID, values map[string]TraitValue) {
	for name, tv := range values {
		v, err := tv.Value()
		if err != nil {
			continue
		}
		w.Set(id, name, v)
	}
}
