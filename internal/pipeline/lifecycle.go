package pipeline

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/internal/statemachine"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

var eventKinds = [...]query.EventKind{
	statemachine.Acquire: query.EventAcquire,
	statemachine.Update:  query.EventUpdate,
	statemachine.Loss:    query.EventLoss,
	statemachine.Timeout: query.EventTimeout,
}

func (p *Pipeline) machineConfig(timeout time.Duration, reacquire bool) statemachine.Config {
	return statemachine.Config{
		ConfirmTicks:    p.confirmTicks,
		Timeout:         timeout,
		ReacquireOnLoss: reacquire,
	}
}

// advance steps the state machine of every working slot and set, and queues the events
// the transitions fire. Idle slots and sets only have their timeouts checked.
func (p *Pipeline) advance(ctx context.Context, now time.Time) {
	for _, slot := range p.working {
		if p.reg.Owners[slot] == registry.NoSet {
			p.advanceSlot(ctx, slot, now, false)
		}
	}
	for _, idx := range p.workingSets {
		p.advanceSet(ctx, idx, now, false)
	}
	for _, slot := range p.idle {
		p.advanceSlot(ctx, slot, now, true)
	}
	for _, idx := range p.idleSets {
		p.advanceSet(ctx, idx, now, true)
	}
}

func (p *Pipeline) advanceSlot(ctx context.Context, slot int, now time.Time, idle bool) {
	args := &p.reg.Args[slot]
	machine := &p.reg.Machines[slot]
	id := p.reg.IDs[slot]
	prev := machine.State

	var event statemachine.Event
	if idle {
		event = machine.Expire(now)
	} else {
		event = machine.Step(p.reg.BestMatch[slot] != traits.Unassigned, now, p.machineConfig(args.Timeout, args.ReacquireOnLoss))
	}
	if machine.State != prev {
		p.logger.DebugWithContext(ctx, "query state changed",
			zap.Stringer("query_match_id", id),
			zap.Stringer("from", prev),
			zap.Stringer("to", machine.State))
	}

	switch event {
	case statemachine.None:
		return

	case statemachine.Acquire, statemachine.Update:
		p.reg.Reported[slot] = p.reg.BestMatch[slot]
		p.enqueue(p.reg.SlotRef(slot), id, event, machine.State, p.slotResult(slot), nil)

	case statemachine.Loss:
		lost := query.Result{ID: id, DataID: p.reg.Reported[slot], Values: maps.Clone(p.reg.Results[slot])}
		p.resetSlot(slot)
		p.enqueue(p.reg.SlotRef(slot), id, event, machine.State, &lost, nil)
		if machine.State == query.Resuming {
			p.reg.Queue().Reset(id, now)
		}

	case statemachine.Timeout:
		p.resetSlot(slot)
		p.enqueue(p.reg.SlotRef(slot), id, event, machine.State, nil, nil)
	}
}

func (p *Pipeline) advanceSet(ctx context.Context, idx int, now time.Time, idle bool) {
	set := &p.reg.Sets[idx]
	prev := set.Machine.State

	var event statemachine.Event
	if idle {
		event = set.Machine.Expire(now)
	} else {
		event = set.Machine.Step(set.Bound, now, p.machineConfig(set.Args.Timeout, set.Args.ReacquireOnLoss))
	}
	for _, slot := range set.Slots {
		p.reg.Machines[slot] = set.Machine
	}
	if set.Machine.State != prev {
		p.logger.DebugWithContext(ctx, "set state changed",
			zap.Stringer("query_match_id", set.ID),
			zap.Stringer("from", prev),
			zap.Stringer("to", set.Machine.State))
	}

	switch event {
	case statemachine.None:
		return

	case statemachine.Acquire, statemachine.Update:
		result := p.setResult(set)
		set.Reported = result.Clone()
		for _, slot := range set.Slots {
			p.reg.Reported[slot] = p.reg.BestMatch[slot]
		}
		p.enqueue(p.reg.SetRef(idx), set.ID, event, set.Machine.State, nil, &result)

	case statemachine.Loss:
		lost := set.Reported
		p.resetSet(set)
		p.enqueue(p.reg.SetRef(idx), set.ID, event, set.Machine.State, nil, &lost)
		if set.Machine.State == query.Resuming {
			p.reg.Queue().Reset(set.ID, now)
		}

	case statemachine.Timeout:
		p.resetSet(set)
		p.enqueue(p.reg.SetRef(idx), set.ID, event, set.Machine.State, nil, nil)
	}
}

func (p *Pipeline) slotResult(slot int) *query.Result {
	return &query.Result{
		ID:     p.reg.IDs[slot],
		DataID: p.reg.BestMatch[slot],
		Values: maps.Clone(p.reg.Results[slot]),
	}
}

func (p *Pipeline) setResult(set *registry.Set) query.SetResult {
	result := query.SetResult{ID: set.ID, Members: make(map[string]query.Result, len(set.Slots))}
	for pos, slot := range set.Slots {
		if p.reg.BestMatch[slot] == traits.Unassigned {
			continue
		}
		result.Members[set.MemberName(pos)] = *p.slotResult(slot)
	}
	return result
}

// resetSlot drops the binding and the result of slot after a loss or a timeout.
func (p *Pipeline) resetSlot(slot int) {
	p.reg.Release(slot)
	clear(p.reg.Results[slot])
	p.reg.Reported[slot] = traits.Unassigned
}

func (p *Pipeline) resetSet(set *registry.Set) {
	p.releaseSet(set)
	for _, slot := range set.Slots {
		clear(p.reg.Results[slot])
		p.reg.Reported[slot] = traits.Unassigned
	}
	set.Reported = query.SetResult{}
}

// Reacquire sends an unavailable query, or the set a member id belongs to, back to
// searching. It returns false when id is unknown or not unavailable.
func (p *Pipeline) Reacquire(id query.QueryMatchID) bool {
	now := p.reg.Now()

	idx, ok := p.reg.LookupSet(id)
	if !ok {
		slot, ok := p.reg.Lookup(id)
		if !ok {
			return false
		}
		if owner := p.reg.Owners[slot]; owner != registry.NoSet {
			idx = owner
		} else {
			return p.reacquireSlot(slot, now)
		}
	}

	set := &p.reg.Sets[idx]
	if set.Machine.State != query.Unavailable {
		return false
	}
	p.resetSet(set)
	set.Machine.Resume(now, p.machineConfig(set.Args.Timeout, set.Args.ReacquireOnLoss))
	for _, slot := range set.Slots {
		p.reg.Machines[slot] = set.Machine
	}
	p.reg.Queue().Reset(set.ID, now)

	p.logger.Info("set query reacquiring", zap.Stringer("query_match_id", set.ID))
	return true
}

func (p *Pipeline) reacquireSlot(slot int, now time.Time) bool {
	machine := &p.reg.Machines[slot]
	if machine.State != query.Unavailable {
		return false
	}
	args := &p.reg.Args[slot]
	p.resetSlot(slot)
	machine.Resume(now, p.machineConfig(args.Timeout, args.ReacquireOnLoss))
	p.reg.Queue().Reset(p.reg.IDs[slot], now)

	p.logger.Info("query reacquiring", zap.Stringer("query_match_id", p.reg.IDs[slot]))
	return true
}

// State returns the lifecycle state of a standalone query or a set.
func (p *Pipeline) State(id query.QueryMatchID) (query.State, bool) {
	if idx, ok := p.reg.LookupSet(id); ok {
		return p.reg.Sets[idx].Machine.State, true
	}
	if slot, ok := p.reg.Lookup(id); ok {
		return p.reg.Machines[slot].State, true
	}
	return query.Unknown, false
}
