// Package registry stores every live query slot in parallel arrays indexed by slot.
//
// A slot is either a standalone query or one member of a set query. Freed slots are
// recycled through a LIFO free list before the arrays grow, and the containers a slot
// uses for pipeline intermediates come from pools so that a steady population of
// queries does not allocate per tick.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/arbiter"
	"github.com/proxima-xr/scenematch/internal/containers"
	"github.com/proxima-xr/scenematch/internal/scheduler"
	"github.com/proxima-xr/scenematch/internal/statemachine"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// NoSet marks a standalone slot in the Owners column.
const NoSet = -1

const defaultContainerCapacity = 16

// Registry is not safe for concurrent use. It is mutated from the host goroutine only,
// either by registration calls or by the pipeline.
type Registry struct {
	logger  logger.Logger
	clock   func() time.Time
	arbiter *arbiter.Arbiter
	queue   *scheduler.Queue
	ids     *query.IDAllocator

	slotsByID map[query.QueryMatchID]int
	setsByID  map[query.QueryMatchID]int
	free      containers.FreeList
	freeSets  containers.FreeList
	live      int
	liveSets  int
	handles   uint64

	ratingMaps  *containers.Pool[map[traits.DataID]float64]
	proposals   *containers.Pool[[]traits.DataID]
	results     *containers.Pool[map[string]traits.Value]
	traitCaches *containers.Pool[*TraitCache]

	// Slot columns. Every column has the same length.

	IDs           []query.QueryMatchID
	Live          []bool
	Generations   []uint32
	Owners        []int
	Args          []query.Args
	Exclusivities []query.Exclusivity
	Conditions    [][]query.Condition
	// Handles identify each condition of a slot in the rating cache.
	Handles      [][]uint64
	Requirements [][]traits.Requirement
	Machines     []statemachine.Machine

	TraitCaches []*TraitCache
	// Ratings holds one map per condition: data id => rating.
	Ratings [][]map[traits.DataID]float64
	// RatedRevisions is the store revision the ratings were computed at. Zero means the
	// slot was never rated.
	RatedRevisions []uint64
	RawProposals   [][]traits.DataID
	Proposals      [][]traits.DataID
	Reduced        []map[traits.DataID]float64
	BestMatch      []traits.DataID
	Results        []map[string]traits.Value
	// Reported is the data id last delivered to handlers, used to describe a loss.
	Reported []traits.DataID

	Sets []Set
}

type Option func(*Registry)

func WithLogger(logger logger.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock sets the time source used to arm timeouts and schedule searches.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithIDAllocator shares an allocator for set member ids.
func WithIDAllocator(ids *query.IDAllocator) Option {
	return func(r *Registry) {
		r.ids = ids
	}
}

// New returns an empty Registry. Ownership is released through arb, and search
// intervals are scheduled on queue.
func New(arb *arbiter.Arbiter, queue *scheduler.Queue, opts ...Option) *Registry {
	r := &Registry{
		logger:    logger.NewNoopLogger(),
		clock:     time.Now,
		arbiter:   arb,
		queue:     queue,
		ids:       &query.IDAllocator{},
		slotsByID: make(map[query.QueryMatchID]int),
		setsByID:  make(map[query.QueryMatchID]int),

		ratingMaps:  containers.NewMapPool[traits.DataID, float64](defaultContainerCapacity),
		proposals:   containers.NewSlicePool[traits.DataID](defaultContainerCapacity),
		results:     containers.NewMapPool[string, traits.Value](4),
		traitCaches: containers.NewPool(newTraitCache, (*TraitCache).reset),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a standalone query under id and returns its slot.
func (r *Registry) Register(id query.QueryMatchID, args query.Args) (int, error) {
	if err := args.Validate(); err != nil {
		return 0, fmt.Errorf("register %s: %w", id, err)
	}
	if r.exists(id) {
		return 0, fmt.Errorf("register %s: %w", id, query.ErrAlreadyRegistered)
	}
	r.ids.Observe(id)

	now := r.clock()
	slot := r.allocSlot(id, args, NoSet, nil)
	r.Machines[slot].Start(now, statemachine.Config{Timeout: args.Timeout})
	if args.SearchInterval > 0 {
		r.queue.Add(id, args.SearchInterval, now)
	}

	r.logger.Debug("query registered",
		zap.Stringer("query_match_id", id),
		zap.Int("slot", slot),
		zap.Int("conditions", len(args.Conditions)),
		zap.Stringer("exclusivity", args.Exclusivity))

	return slot, nil
}

// RegisterSet adds a set query under id and returns its set index. Member slots get
// fresh ids under id's query id. Malformed relations are logged and left out; the set
// itself still registers.
func (r *Registry) RegisterSet(id query.QueryMatchID, args query.SetArgs) (int, error) {
	if err := args.Validate(); err != nil {
		return 0, fmt.Errorf("register set %s: %w", id, err)
	}
	if r.exists(id) {
		return 0, fmt.Errorf("register set %s: %w", id, query.ErrAlreadyRegistered)
	}
	r.ids.Observe(id)

	relations := r.bindRelations(id, &args)

	idx, ok := r.freeSets.Pop()
	if !ok {
		r.Sets = append(r.Sets, Set{})
		idx = len(r.Sets) - 1
	}

	set := &r.Sets[idx]
	set.ID = id
	set.Live = true
	set.Args = args
	set.Relations = relations
	set.Bound = false
	set.Slots = set.Slots[:0]

	for pos, member := range args.Members {
		memberID := r.ids.Next(id.QueryID)
		for r.exists(memberID) {
			memberID = r.ids.Next(id.QueryID)
		}

		var extra []traits.Requirement
		for _, rel := range relations {
			if rel.A == pos {
				extra = append(extra, rel.ReqA)
			}
			if rel.B == pos {
				extra = append(extra, rel.ReqB)
			}
		}

		slot := r.allocSlot(memberID, member.Args(), idx, extra)
		set = &r.Sets[idx]
		set.Slots = append(set.Slots, slot)
	}

	now := r.clock()
	set.Machine.Start(now, statemachine.Config{Timeout: args.Timeout})
	for _, slot := range set.Slots {
		r.Machines[slot] = set.Machine
	}
	if args.SearchInterval > 0 {
		r.queue.Add(id, args.SearchInterval, now)
	}

	r.setsByID[id] = idx
	r.liveSets++

	r.logger.Debug("set query registered",
		zap.Stringer("query_match_id", id),
		zap.Int("set", idx),
		zap.Int("members", len(args.Members)),
		zap.Int("relations", len(relations)))

	return idx, nil
}

func (r *Registry) bindRelations(id query.QueryMatchID, args *query.SetArgs) []BoundRelation {
	var bound []BoundRelation
	for i, rel := range args.Relations {
		if err := query.ValidateRelation(rel); err != nil {
			r.logger.Error("relation excluded from set",
				zap.Stringer("query_match_id", id),
				zap.Int("relation", i),
				zap.Error(err))
			continue
		}

		childA, childB := rel.Children()
		a, b := args.MemberIndex(childA), args.MemberIndex(childB)
		if a < 0 || b < 0 {
			r.logger.Error("relation excluded from set",
				zap.Stringer("query_match_id", id),
				zap.Int("relation", i),
				zap.Error(fmt.Errorf("%w: '%s' or '%s'", query.ErrUnknownMember, childA, childB)))
			continue
		}

		reqs := rel.Requirements()
		bound = append(bound, BoundRelation{
			Relation: rel,
			A:        a,
			B:        b,
			ReqA:     reqs[0],
			ReqB:     reqs[1],
		})
	}
	return bound
}

func (r *Registry) exists(id query.QueryMatchID) bool {
	if _, ok := r.slotsByID[id]; ok {
		return true
	}
	_, ok := r.setsByID[id]
	return ok
}

func (r *Registry) allocSlot(id query.QueryMatchID, args query.Args, owner int, extra []traits.Requirement) int {
	slot, ok := r.free.Pop()
	if !ok {
		slot = r.grow()
	}

	r.IDs[slot] = id
	r.Live[slot] = true
	r.Owners[slot] = owner
	r.Args[slot] = args
	r.Exclusivities[slot] = args.Exclusivity
	r.Conditions[slot] = args.Conditions

	r.Handles[slot] = r.Handles[slot][:0]
	r.Ratings[slot] = r.Ratings[slot][:0]
	for range args.Conditions {
		r.handles++
		r.Handles[slot] = append(r.Handles[slot], r.handles)
		r.Ratings[slot] = append(r.Ratings[slot], r.ratingMaps.Get())
	}

	reqs := r.Requirements[slot][:0]
	for _, c := range args.Conditions {
		reqs = appendRequirement(reqs, c.Requirement())
	}
	for _, req := range extra {
		reqs = appendRequirement(reqs, req)
	}
	r.Requirements[slot] = reqs

	r.TraitCaches[slot] = r.traitCaches.Get()
	r.RatedRevisions[slot] = 0
	r.RawProposals[slot] = r.proposals.Get()
	r.Proposals[slot] = r.proposals.Get()
	r.Reduced[slot] = r.ratingMaps.Get()
	r.BestMatch[slot] = traits.Unassigned
	r.Results[slot] = r.results.Get()
	r.Reported[slot] = traits.Unassigned
	r.Machines[slot] = statemachine.Machine{}

	r.slotsByID[id] = slot
	r.live++
	return slot
}

func appendRequirement(reqs []traits.Requirement, req traits.Requirement) []traits.Requirement {
	if slices.Contains(reqs, req) {
		return reqs
	}
	return append(reqs, req)
}

func (r *Registry) grow() int {
	r.IDs = append(r.IDs, query.QueryMatchID{})
	r.Live = append(r.Live, false)
	r.Generations = append(r.Generations, 0)
	r.Owners = append(r.Owners, NoSet)
	r.Args = append(r.Args, query.Args{})
	r.Exclusivities = append(r.Exclusivities, query.ReadOnly)
	r.Conditions = append(r.Conditions, nil)
	r.Handles = append(r.Handles, nil)
	r.Requirements = append(r.Requirements, nil)
	r.Machines = append(r.Machines, statemachine.Machine{})
	r.TraitCaches = append(r.TraitCaches, nil)
	r.Ratings = append(r.Ratings, nil)
	r.RatedRevisions = append(r.RatedRevisions, 0)
	r.RawProposals = append(r.RawProposals, nil)
	r.Proposals = append(r.Proposals, nil)
	r.Reduced = append(r.Reduced, nil)
	r.BestMatch = append(r.BestMatch, traits.Unassigned)
	r.Results = append(r.Results, nil)
	r.Reported = append(r.Reported, traits.Unassigned)
	return len(r.IDs) - 1
}

// Remove unregisters a standalone query or a whole set query. Passing the id of a set
// member removes the set it belongs to. It returns false, without side effects, when id
// is not registered.
func (r *Registry) Remove(id query.QueryMatchID) bool {
	if idx, ok := r.setsByID[id]; ok {
		r.removeSet(idx)
		return true
	}

	slot, ok := r.slotsByID[id]
	if !ok {
		return false
	}
	if owner := r.Owners[slot]; owner != NoSet {
		r.removeSet(owner)
		return true
	}

	r.freeSlot(slot)
	r.queue.Remove(id)
	r.logger.Debug("query removed", zap.Stringer("query_match_id", id), zap.Int("slot", slot))
	return true
}

func (r *Registry) removeSet(idx int) {
	set := &r.Sets[idx]
	for _, slot := range set.Slots {
		r.freeSlot(slot)
	}
	r.queue.Remove(set.ID)
	delete(r.setsByID, set.ID)

	r.logger.Debug("set query removed", zap.Stringer("query_match_id", set.ID), zap.Int("set", idx))

	slots := set.Slots[:0]
	*set = Set{Generation: set.Generation + 1, Slots: slots}
	r.freeSets.Push(idx)
	r.liveSets--
}

func (r *Registry) freeSlot(slot int) {
	id := r.IDs[slot]
	r.arbiter.ReleaseAll(id)

	for _, m := range r.Ratings[slot] {
		r.ratingMaps.Put(m)
	}
	r.Ratings[slot] = r.Ratings[slot][:0]
	r.traitCaches.Put(r.TraitCaches[slot])
	r.proposals.Put(r.RawProposals[slot])
	r.proposals.Put(r.Proposals[slot])
	r.ratingMaps.Put(r.Reduced[slot])
	r.results.Put(r.Results[slot])

	r.TraitCaches[slot] = nil
	r.RawProposals[slot] = nil
	r.Proposals[slot] = nil
	r.Reduced[slot] = nil
	r.Results[slot] = nil
	r.Conditions[slot] = nil
	r.Handles[slot] = r.Handles[slot][:0]
	r.Requirements[slot] = r.Requirements[slot][:0]
	r.Args[slot] = query.Args{}
	r.Owners[slot] = NoSet
	r.RatedRevisions[slot] = 0
	r.BestMatch[slot] = traits.Unassigned
	r.Reported[slot] = traits.Unassigned
	r.Machines[slot] = statemachine.Machine{}
	r.IDs[slot] = query.QueryMatchID{}
	r.Live[slot] = false
	r.Generations[slot]++

	delete(r.slotsByID, id)
	r.free.Push(slot)
	r.live--
}

// Clear removes every query and releases every binding. Slot generations keep counting
// so that events queued before the call are recognized as stale.
func (r *Registry) Clear() {
	for idx := range r.Sets {
		if r.Sets[idx].Live {
			r.removeSet(idx)
		}
	}
	for slot, live := range r.Live {
		if live {
			r.freeSlot(slot)
		}
	}

	r.free.Reset()
	for slot := len(r.IDs) - 1; slot >= 0; slot-- {
		r.free.Push(slot)
	}
	r.freeSets.Reset()
	for idx := len(r.Sets) - 1; idx >= 0; idx-- {
		r.freeSets.Push(idx)
	}

	r.arbiter.Clear()
	r.queue.Clear()
	clear(r.slotsByID)
	clear(r.setsByID)
	r.live = 0
	r.liveSets = 0
}

// Count returns the number of live slots, set members included.
func (r *Registry) Count() int {
	return r.live
}

// SetCount returns the number of live set queries.
func (r *Registry) SetCount() int {
	return r.liveSets
}

// Len returns the length of the slot columns, live or not.
func (r *Registry) Len() int {
	return len(r.IDs)
}

// Lookup returns the slot of a standalone query or set member.
func (r *Registry) Lookup(id query.QueryMatchID) (int, bool) {
	slot, ok := r.slotsByID[id]
	return slot, ok
}

// LookupSet returns the set index of a set query.
func (r *Registry) LookupSet(id query.QueryMatchID) (int, bool) {
	idx, ok := r.setsByID[id]
	return idx, ok
}

// ErrStale is returned when a slot or set reference outlived its registration.
var ErrStale = errors.New("stale registry reference")

// Ref pins a slot or set to one registration.
type Ref struct {
	Index      int
	Generation uint32
	Set        bool
}

// SlotRef returns a Ref to slot.
func (r *Registry) SlotRef(slot int) Ref {
	return Ref{Index: slot, Generation: r.Generations[slot]}
}

// SetRef returns a Ref to the set at idx.
func (r *Registry) SetRef(idx int) Ref {
	return Ref{Index: idx, Generation: r.Sets[idx].Generation, Set: true}
}

// Check returns ErrStale when ref no longer names a live registration.
func (r *Registry) Check(ref Ref) error {
	if ref.Set {
		if ref.Index >= len(r.Sets) || !r.Sets[ref.Index].Live || r.Sets[ref.Index].Generation != ref.Generation {
			return ErrStale
		}
		return nil
	}
	if ref.Index >= len(r.IDs) || !r.Live[ref.Index] || r.Generations[ref.Index] != ref.Generation {
		return ErrStale
	}
	return nil
}

// Release drops the binding of slot, if any, and resets its best match.
func (r *Registry) Release(slot int) {
	if dataID := r.BestMatch[slot]; dataID != traits.Unassigned {
		r.arbiter.Release(dataID, r.IDs[slot])
	}
	r.BestMatch[slot] = traits.Unassigned
}

// Bind claims dataID for slot and records it as its best match.
func (r *Registry) Bind(slot int, dataID traits.DataID) {
	if prev := r.BestMatch[slot]; prev != traits.Unassigned && prev != dataID {
		r.arbiter.Release(prev, r.IDs[slot])
	}
	r.arbiter.Claim(dataID, r.IDs[slot], r.Exclusivities[slot])
	r.BestMatch[slot] = dataID
}

// Arbiter returns the ownership table the registry releases into.
func (r *Registry) Arbiter() *arbiter.Arbiter {
	return r.arbiter
}

// Queue returns the search scheduler.
func (r *Registry) Queue() *scheduler.Queue {
	return r.queue
}

// Now reads the registry clock.
func (r *Registry) Now() time.Time {
	return r.clock()
}

// ResetRatings forgets the ratings of slot so it is rated from scratch next tick.
func (r *Registry) ResetRatings(slot int) {
	for _, m := range r.Ratings[slot] {
		clear(m)
	}
	r.RatedRevisions[slot] = 0
	r.RawProposals[slot] = r.RawProposals[slot][:0]
}
