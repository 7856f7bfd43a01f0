// Package query holds the vocabulary shared between query authors and the matching
// engine: identifiers, predicates, registration arguments, results and states.
package query

import (
	"fmt"
	"sync"
)

// QueryMatchID names one live binding attempt. A query id may spawn many match ids over
// time; the pair is unique while the attempt is registered.
type QueryMatchID struct {
	QueryID int32
	MatchID int32
}

func (id QueryMatchID) String() string {
	return fmt.Sprintf("%d:%d", id.QueryID, id.MatchID)
}

// Less orders ids by query id, then match id. It is the priority order used to break
// ties between queries competing for the same data.
func (id QueryMatchID) Less(o QueryMatchID) bool {
	if id.QueryID != o.QueryID {
		return id.QueryID < o.QueryID
	}
	return id.MatchID < o.MatchID
}

// Compare returns -1, 0 or +1 following Less.
func (id QueryMatchID) Compare(o QueryMatchID) int {
	switch {
	case id.Less(o):
		return -1
	case o.Less(id):
		return 1
	}
	return 0
}

// IDAllocator issues fresh match ids per query id. The zero value is ready for use.
type IDAllocator struct {
	mu   sync.Mutex
	next map[int32]int32
}

// Next returns a QueryMatchID for queryID that has not been issued by this allocator before.
func (a *IDAllocator) Next(queryID int32) QueryMatchID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == nil {
		a.next = make(map[int32]int32)
	}
	a.next[queryID]++
	return QueryMatchID{QueryID: queryID, MatchID: a.next[queryID]}
}

// Observe records an externally chosen id so Next never reissues it.
func (a *IDAllocator) Observe(id QueryMatchID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == nil {
		a.next = make(map[int32]int32)
	}
	if id.MatchID > a.next[id.QueryID] {
		a.next[id.QueryID] = id.MatchID
	}
}
