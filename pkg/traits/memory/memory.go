// Package memory provides an in-process trait store. It plays the role of the discovery
// side (planes, markers, faces) in tests and in the scene simulator.
package memory

import (
	"iter"
	"slices"
	"sync"

	"github.com/proxima-xr/scenematch/pkg/traits"
)

type column struct {
	// ids is kept sorted so iteration order is deterministic.
	ids    []traits.DataID
	values map[traits.DataID]traits.Value
}

type entry struct {
	id    traits.DataID
	value traits.Value
}

// Store is an ephemeral memory-backed implementation of [traits.Reader] and
// [traits.Versioned]. Instances may be safely shared by multiple go-routines.
type Store struct {
	mu sync.RWMutex

	// map: trait name => column of values
	columns map[string]*column // GUARDED_BY(mu).

	// map: data id => revision of its last change
	dataRevisions map[traits.DataID]uint64 // GUARDED_BY(mu).
	revision      uint64                   // GUARDED_BY(mu).

	scratch sync.Pool
}

var (
	_ traits.Reader    = (*Store)(nil)
	_ traits.Versioned = (*Store)(nil)
)

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithTraits seeds the store with an initial set of values.
func WithTraits(values map[traits.DataID]map[string]traits.Value) StoreOption {
	return func(s *Store) {
		for id, named := range values {
			for name, v := range named {
				s.setLocked(id, name, v)
			}
		}
	}
}

// New creates a new [Store] given the options.
func New(opts ...StoreOption) *Store {
	s := &Store{
		columns:       make(map[string]*column),
		dataRevisions: make(map[traits.DataID]uint64),
	}
	s.scratch.New = func() any {
		buf := make([]entry, 0, 16)
		return &buf
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Set adds or updates the named trait on dataID. Writing an identical value is a no-op
// and does not bump revisions.
func (s *Store) Set(dataID traits.DataID, name string, value traits.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(dataID, name, value)
}

func (s *Store) setLocked(dataID traits.DataID, name string, value traits.Value) {
	col, ok := s.columns[name]
	if !ok {
		col = &column{values: make(map[traits.DataID]traits.Value)}
		s.columns[name] = col
	}

	if old, ok := col.values[dataID]; ok {
		if old.Equal(value) {
			return
		}
	} else {
		idx, _ := slices.BinarySearch(col.ids, dataID)
		col.ids = slices.Insert(col.ids, idx, dataID)
	}

	col.values[dataID] = value
	s.bumpLocked(dataID)
}

// Remove deletes the named trait from dataID. It returns false when the trait was not present.
func (s *Store) Remove(dataID traits.DataID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(dataID, name)
}

func (s *Store) removeLocked(dataID traits.DataID, name string) bool {
	col, ok := s.columns[name]
	if !ok {
		return false
	}
	if _, ok := col.values[dataID]; !ok {
		return false
	}

	delete(col.values, dataID)
	if idx, found := slices.BinarySearch(col.ids, dataID); found {
		col.ids = slices.Delete(col.ids, idx, idx+1)
	}
	if len(col.ids) == 0 {
		delete(s.columns, name)
	}

	s.bumpLocked(dataID)
	return true
}

// RemoveData deletes every trait held by dataID and returns how many were removed.
func (s *Store) RemoveData(dataID traits.DataID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name := range s.columns {
		if s.removeLocked(dataID, name) {
			removed++
		}
	}
	return removed
}

func (s *Store) bumpLocked(dataID traits.DataID) {
	s.revision++
	s.dataRevisions[dataID] = s.revision
}

// TryGetTrait see [traits.Reader].TryGetTrait.
func (s *Store) TryGetTrait(dataID traits.DataID, name string) (traits.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.columns[name]
	if !ok {
		return traits.Value{}, false
	}
	v, ok := col.values[dataID]
	return v, ok
}

// GetAllWithTrait see [traits.Reader].GetAllWithTrait. Values are yielded in ascending
// data id order from a snapshot, so the caller may read the store while iterating.
func (s *Store) GetAllWithTrait(name string) iter.Seq2[traits.DataID, traits.Value] {
	return func(yield func(traits.DataID, traits.Value) bool) {
		bufp := s.scratch.Get().(*[]entry)
		defer func() {
			*bufp = (*bufp)[:0]
			s.scratch.Put(bufp)
		}()

		s.mu.RLock()
		if col, ok := s.columns[name]; ok {
			for _, id := range col.ids {
				*bufp = append(*bufp, entry{id: id, value: col.values[id]})
			}
		}
		s.mu.RUnlock()

		for _, e := range *bufp {
			if !yield(e.id, e.value) {
				return
			}
		}
	}
}

// Revision see [traits.Versioned].Revision.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.revision
}

// DataRevision see [traits.Versioned].DataRevision.
func (s *Store) DataRevision(dataID traits.DataID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dataRevisions[dataID]
}

// Len returns the number of distinct trait names currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.columns)
}
