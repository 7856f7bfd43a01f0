// Package scheduler is the cooperative task queue that throttles how often searching
// queries are re-evaluated. Nothing runs in the background: the pipeline asks which
// tasks are due once per tick.
package scheduler

import (
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/proxima-xr/scenematch/pkg/query"
)

type task struct {
	key query.QueryMatchID
	due time.Time
	seq uint64
}

type entry struct {
	interval time.Duration
	seq      uint64
}

// Queue orders tasks by due time, then key. Removed or rescheduled tasks are discarded
// lazily when they reach the top of the heap. Queue is not safe for concurrent use.
type Queue struct {
	heap    *binaryheap.Heap
	entries map[query.QueryMatchID]entry
	seq     uint64
}

func New() *Queue {
	return &Queue{
		heap:    binaryheap.NewWith(byDueThenKey),
		entries: make(map[query.QueryMatchID]entry),
	}
}

func byDueThenKey(a, b interface{}) int {
	ta, tb := a.(task), b.(task)
	switch {
	case ta.due.Before(tb.due):
		return -1
	case tb.due.Before(ta.due):
		return 1
	}
	return ta.key.Compare(tb.key)
}

// Add schedules key every interval, starting at now. Adding an existing key replaces it.
func (q *Queue) Add(key query.QueryMatchID, interval time.Duration, now time.Time) {
	q.seq++
	q.entries[key] = entry{interval: interval, seq: q.seq}
	q.heap.Push(task{key: key, due: now, seq: q.seq})
}

// Reset makes key due at now, keeping its interval. It returns false for unknown keys.
func (q *Queue) Reset(key query.QueryMatchID, now time.Time) bool {
	e, ok := q.entries[key]
	if !ok {
		return false
	}
	q.Add(key, e.interval, now)
	return true
}

// Remove unschedules key. It returns false when key was not scheduled.
func (q *Queue) Remove(key query.QueryMatchID) bool {
	if _, ok := q.entries[key]; !ok {
		return false
	}
	delete(q.entries, key)
	return true
}

// Contains reports whether key is scheduled.
func (q *Queue) Contains(key query.QueryMatchID) bool {
	_, ok := q.entries[key]
	return ok
}

// Due calls fn for every task due at or before now, in due order, and reschedules each
// of them one interval after now. fn must not call back into q.
func (q *Queue) Due(now time.Time, fn func(query.QueryMatchID)) int {
	var fired []task
	for {
		top, ok := q.heap.Peek()
		if !ok {
			break
		}
		t := top.(task)
		if t.due.After(now) {
			break
		}
		q.heap.Pop()

		e, live := q.entries[t.key]
		if !live || e.seq != t.seq {
			continue
		}
		fired = append(fired, t)
	}

	for _, t := range fired {
		fn(t.key)
		e := q.entries[t.key]
		q.heap.Push(task{key: t.key, due: now.Add(e.interval), seq: e.seq})
	}
	return len(fired)
}

// Len returns the number of scheduled keys.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Clear unschedules every key.
func (q *Queue) Clear() {
	q.heap.Clear()
	clear(q.entries)
}
