package pipeline

import (
	"iter"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/proxima-xr/scenematch/internal/mocks"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

var valuesEqual = cmp.Comparer(func(a, b traits.Value) bool { return a.Equal(b) })

func TestTimeoutAndReacquire(t *testing.T) {
	h := newHarness(t)

	timeouts := 0
	h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Timeout:    250 * time.Millisecond,
		Handlers: query.Handlers{
			OnTimeout: func(query.Args) { timeouts++ },
		},
	})

	h.ticks(2)
	require.Equal(t, query.Querying, h.state(qid(1)))
	require.Zero(t, timeouts)

	h.tick()
	require.Equal(t, 1, timeouts)
	require.Equal(t, query.Unavailable, h.state(qid(1)))

	h.addEntity(1)
	h.ticks(5)
	require.Equal(t, 1, timeouts, "a timed out query stays halted")
	require.Equal(t, 1, h.count(qid(1), query.EventTimeout))
	require.Equal(t, query.Unavailable, h.state(qid(1)))
	require.Zero(t, h.count(qid(1), query.EventAcquire))

	require.True(t, h.p.Reacquire(qid(1)))
	require.False(t, h.p.Reacquire(qid(1)), "already searching")
	require.Equal(t, query.Resuming, h.state(qid(1)))

	h.ticks(2)
	require.Equal(t, query.Tracking, h.state(qid(1)))
	require.Equal(t, 1, h.count(qid(1), query.EventAcquire))

	require.False(t, h.p.Reacquire(qid(99)))
}

func TestTimeoutFiresWhileSearchIsNotDue(t *testing.T) {
	h := newHarness(t)

	timeouts := 0
	h.register(qid(1), query.Args{
		Conditions:     []query.Condition{fixed(1)},
		SearchInterval: time.Second,
		Timeout:        250 * time.Millisecond,
		Handlers: query.Handlers{
			OnTimeout: func(query.Args) { timeouts++ },
		},
	})
	idx := h.registerSet(qid(10), query.SetArgs{
		Members:        []query.Member{upright("table", true), upright("chair", true)},
		SearchInterval: time.Second,
		Timeout:        250 * time.Millisecond,
	})

	h.ticks(2)
	require.Equal(t, query.Querying, h.state(qid(1)))
	require.Equal(t, query.Querying, h.state(qid(10)))
	require.Empty(t, h.p.Snapshot().Working, "searches are not due")
	require.Zero(t, timeouts)

	h.tick()
	require.Empty(t, h.p.Snapshot().Working)
	require.Equal(t, 1, timeouts)
	require.Equal(t, query.Unavailable, h.state(qid(1)))
	require.Equal(t, 1, h.count(qid(10), query.EventTimeout))
	require.Equal(t, query.Unavailable, h.state(qid(10)))
	for _, slot := range h.reg.Sets[idx].Slots {
		require.True(t, h.reg.Machines[slot].Halted)
	}

	h.ticks(10)
	require.Equal(t, 1, h.count(qid(1), query.EventTimeout))
	require.Equal(t, 1, h.count(qid(10), query.EventTimeout))
}

func TestTimeoutDoesNotFireWhileTracking(t *testing.T) {
	h := newHarness(t)
	h.addEntity(1)
	h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Timeout:    250 * time.Millisecond,
	})

	h.ticks(10)
	require.Equal(t, query.Tracking, h.state(qid(1)))
	require.Zero(t, h.count(qid(1), query.EventTimeout))
	require.Equal(t, 8, h.count(qid(1), query.EventUpdate))
}

func TestSetTimeoutAndReacquireByMember(t *testing.T) {
	h := newHarness(t)
	h.place(1, 0, 0, 0)

	idx := h.registerSet(qid(10), query.SetArgs{
		Members: []query.Member{upright("table", true), upright("chair", true)},
		Timeout: 150 * time.Millisecond,
	})

	h.ticks(2)
	require.Equal(t, 1, h.count(qid(10), query.EventTimeout))
	require.Equal(t, query.Unavailable, h.state(qid(10)))
	for _, slot := range h.reg.Sets[idx].Slots {
		require.True(t, h.reg.Machines[slot].Halted)
	}

	h.place(2, 3, 0, 0)
	member := h.reg.IDs[h.reg.Sets[idx].Slots[1]]
	require.True(t, h.p.Reacquire(member))
	require.Equal(t, query.Resuming, h.state(qid(10)))

	h.ticks(2)
	require.Equal(t, query.Tracking, h.state(qid(10)))
	require.ElementsMatch(t, []traits.DataID{1, 2}, h.members(idx))
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	log, logs := logger.NewObserverLogger("error")
	h := newHarness(t, WithLogger(log), WithObserver(func(query.Event) { panic("observer") }))
	h.addEntity(1)

	var acquired []query.QueryMatchID
	h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Handlers: query.Handlers{
			OnAcquire: func(query.Result) { panic("handler") },
		},
	})
	h.register(qid(2), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Handlers: query.Handlers{
			OnAcquire: func(r query.Result) { acquired = append(acquired, r.ID) },
		},
	})

	h.ticks(2)
	require.Equal(t, []query.QueryMatchID{qid(2)}, acquired)
	require.Equal(t, 1, h.count(qid(1), query.EventAcquire), "observers still see the event")
	require.Equal(t, query.Tracking, h.state(qid(1)))

	require.Equal(t, 1, logs.FilterMessage("lifecycle handler panicked").Len())
	require.Equal(t, 2, logs.FilterMessage("lifecycle observer panicked").Len())
}

func TestRemoveDuringDispatchDropsEvents(t *testing.T) {
	h := newHarness(t)
	h.addEntity(1)

	h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Handlers: query.Handlers{
			OnAcquire: func(query.Result) { h.reg.Remove(qid(2)) },
		},
	})
	h.register(qid(2), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Handlers: query.Handlers{
			OnAcquire: func(query.Result) { t.Fatal("removed query must not be called") },
		},
	})

	h.ticks(2)
	require.Equal(t, 1, h.count(qid(1), query.EventAcquire))
	require.Zero(t, h.count(qid(2), query.EventAcquire))
	_, ok := h.p.State(qid(2))
	require.False(t, ok)

	// The freed slot is reused by a new registration; the dropped event must not leak to it.
	h.register(qid(3), query.Args{Conditions: []query.Condition{fixed(1)}})
	h.ticks(2)
	require.Equal(t, 1, h.count(qid(3), query.EventAcquire))
}

func TestHandlersReceiveCopies(t *testing.T) {
	h := newHarness(t)
	h.addEntity(1)

	h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1)},
		Handlers: query.Handlers{
			OnAcquire: func(r query.Result) { delete(r.Values, "present") },
		},
	})

	h.ticks(2)
	slot, ok := h.reg.Lookup(qid(1))
	require.True(t, ok)
	require.Contains(t, h.reg.Results[slot], "present")
}

func TestFillResultIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addEntity(1)
	h.store.Set(1, "quality", traits.Float(0.8))

	slot := h.register(qid(1), query.Args{
		Conditions: []query.Condition{fixed(1), quality(0.5)},
	})
	h.ticks(2)
	require.Equal(t, traits.DataID(1), h.reg.BestMatch[slot])

	want := map[string]traits.Value{
		"present": traits.Bool(true),
		"quality": traits.Float(0.8),
	}
	require.Empty(t, cmp.Diff(want, h.reg.Results[slot], valuesEqual))

	h.p.fillResult(slot, 1)
	h.p.fillResult(slot, 1)
	require.Empty(t, cmp.Diff(want, h.reg.Results[slot], valuesEqual))

	h.store.Set(1, "quality", traits.Float(0.9))
	h.tick()
	want["quality"] = traits.Float(0.9)
	require.Empty(t, cmp.Diff(want, h.reg.Results[slot], valuesEqual))
}

func TestLossReportsLastValues(t *testing.T) {
	h := newHarness(t)
	h.store.Set(1, "quality", traits.Float(0.8))

	var lost []query.Result
	h.register(qid(1), query.Args{
		Conditions: []query.Condition{quality(0.5)},
		Handlers: query.Handlers{
			OnLoss: func(r query.Result) { lost = append(lost, r) },
		},
	})
	h.ticks(2)

	h.store.Set(1, "quality", traits.Float(0.1))
	h.tick()

	require.Len(t, lost, 1)
	require.Equal(t, traits.DataID(1), lost[0].DataID)
	require.Empty(t, cmp.Diff(map[string]traits.Value{"quality": traits.Float(0.8)}, lost[0].Values, valuesEqual))
}

func TestKindMismatchLoggedOnce(t *testing.T) {
	log, logs := logger.NewObserverLogger("warn")
	h := newHarness(t, WithLogger(log))
	h.store.Set(1, "quality", traits.Int(3))

	h.register(qid(1), query.Args{Conditions: []query.Condition{quality(0)}})
	h.ticks(4)

	require.Equal(t, 1, logs.FilterMessage("trait kind mismatch").Len())
	require.Equal(t, query.Querying, h.state(qid(1)))
}

func TestUnversionedStoreIsRatedEveryTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockReader(ctrl)

	ids := func(yield func(traits.DataID, traits.Value) bool) {
		for _, id := range []traits.DataID{1, 2} {
			if !yield(id, traits.Int(int64(id))) {
				return
			}
		}
	}
	store.EXPECT().GetAllWithTrait("id").Return(iter.Seq2[traits.DataID, traits.Value](ids)).AnyTimes()
	store.EXPECT().TryGetTrait(gomock.Any(), "id").DoAndReturn(func(id traits.DataID, _ string) (traits.Value, bool) {
		return traits.Int(int64(id)), true
	}).AnyTimes()

	h := newHarness(t)
	h.p = New(h.reg, store, WithRatingCache(newRatingCache(t)), WithObserver(func(e query.Event) {
		h.events = append(h.events, e)
	}))

	cond := table(map[traits.DataID]float64{1: 0.4, 2: 0.7}).(*tableCondition)
	slot := h.register(qid(1), query.Args{Conditions: []query.Condition{cond}})

	h.ticks(3)
	require.Equal(t, int64(6), cond.calls.Load(), "no revisions means no short circuit and no cache")
	require.Equal(t, traits.DataID(2), h.reg.BestMatch[slot])
	require.Equal(t, query.Tracking, h.state(qid(1)))
}

func TestExclusivityHolds(t *testing.T) {
	h := newHarness(t)
	rnd := rand.New(rand.NewSource(7))

	const entities = 12
	for i := traits.DataID(1); i <= entities; i++ {
		h.addEntity(i)
	}

	exclusivities := []query.Exclusivity{query.ReadOnly, query.Shared, query.Exclusive}
	for q := int32(1); q <= 20; q++ {
		ratings := make(map[traits.DataID]float64, entities)
		for i := traits.DataID(1); i <= entities; i++ {
			ratings[i] = rnd.Float64()
		}
		h.register(qid(q), query.Args{
			Conditions:      []query.Condition{table(ratings)},
			Exclusivity:     exclusivities[rnd.Intn(len(exclusivities))],
			ReacquireOnLoss: true,
		})
	}

	arb := h.reg.Arbiter()
	for step := 0; step < 200; step++ {
		id := traits.DataID(rnd.Intn(entities) + 1)
		if rnd.Intn(3) == 0 {
			h.store.RemoveData(id)
		} else {
			h.addEntity(id)
		}
		h.tick()

		for slot, live := range h.reg.Live {
			if !live {
				continue
			}
			if bound := h.reg.BestMatch[slot]; bound != traits.Unassigned {
				require.True(t, arb.Owns(bound, h.reg.IDs[slot]), "bound data is owned")
			}
		}
		for i := traits.DataID(1); i <= entities; i++ {
			bindings := arb.Bindings(i)
			for _, b := range bindings {
				if b.Exclusivity == query.Exclusive {
					require.Len(t, bindings, 1, "exclusive data has a single owner")
				}
			}
		}
	}
}
