package pipeline

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/internal/statemachine"
	"github.com/proxima-xr/scenematch/pkg/query"
)

// pendingEvent is an event waiting for the end of the tick, pinned to the registration
// that produced it.
type pendingEvent struct {
	event query.Event
	ref   registry.Ref
}

func (p *Pipeline) enqueue(
	ref registry.Ref,
	id query.QueryMatchID,
	kind statemachine.Event,
	state query.State,
	result *query.Result,
	setResult *query.SetResult,
) {
	p.pending = append(p.pending, pendingEvent{
		ref: ref,
		event: query.Event{
			ID:           ulid.Make(),
			Kind:         eventKinds[kind],
			Tick:         p.tick,
			QueryMatchID: id,
			State:        state,
			Result:       result,
			SetResult:    setResult,
		},
	})
}

// drain dispatches the queued events in order. Events whose query was removed by an
// earlier handler are dropped.
func (p *Pipeline) drain(ctx context.Context) {
	for i := range p.pending {
		p.dispatch(ctx, &p.pending[i])
	}
	clear(p.pending)
	p.pending = p.pending[:0]
}

func (p *Pipeline) dispatch(ctx context.Context, pe *pendingEvent) {
	ev := pe.event

	if err := p.reg.Check(pe.ref); err != nil {
		staleEventsCounter.Inc()
		p.logger.DebugWithContext(ctx, "stale lifecycle event dropped",
			zap.Stringer("query_match_id", ev.QueryMatchID),
			zap.Stringer("event", ev.Kind))
		return
	}

	lifecycleEventsCounter.WithLabelValues(ev.Kind.String()).Inc()
	p.logger.DebugWithContext(ctx, "lifecycle event",
		zap.Stringer("query_match_id", ev.QueryMatchID),
		zap.Stringer("event", ev.Kind),
		zap.Stringer("event_id", ev.ID),
		zap.Stringer("state", ev.State))

	p.safely(ctx, ev, "lifecycle handler panicked", func() {
		if pe.ref.Set {
			p.callSetHandler(pe.ref.Index, ev)
		} else {
			p.callHandler(pe.ref.Index, ev)
		}
	})

	for _, observer := range p.observers {
		p.safely(ctx, ev, "lifecycle observer panicked", func() {
			observer(ev)
		})
	}
}

func (p *Pipeline) callHandler(slot int, ev query.Event) {
	args := p.reg.Args[slot]
	h := args.Handlers

	switch ev.Kind {
	case query.EventAcquire:
		if h.OnAcquire != nil {
			h.OnAcquire(ev.Result.Clone())
		}
	case query.EventUpdate:
		if h.OnUpdate != nil {
			h.OnUpdate(ev.Result.Clone())
		}
	case query.EventLoss:
		if h.OnLoss != nil {
			h.OnLoss(ev.Result.Clone())
		}
	case query.EventTimeout:
		if h.OnTimeout != nil {
			h.OnTimeout(args)
		}
	}
}

func (p *Pipeline) callSetHandler(idx int, ev query.Event) {
	args := p.reg.Sets[idx].Args
	h := args.Handlers

	switch ev.Kind {
	case query.EventAcquire:
		if h.OnAcquire != nil {
			h.OnAcquire(ev.SetResult.Clone())
		}
	case query.EventUpdate:
		if h.OnUpdate != nil {
			h.OnUpdate(ev.SetResult.Clone())
		}
	case query.EventLoss:
		if h.OnLoss != nil {
			h.OnLoss(ev.SetResult.Clone())
		}
	case query.EventTimeout:
		if h.OnTimeout != nil {
			h.OnTimeout(args)
		}
	}
}

// safely runs fn, recovering and counting a panic so that one faulty callback cannot
// stop the rest of the dispatch.
func (p *Pipeline) safely(ctx context.Context, ev query.Event, msg string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanicCounter.WithLabelValues(ev.Kind.String()).Inc()
			p.logger.ErrorWithContext(ctx, msg,
				zap.Stringer("query_match_id", ev.QueryMatchID),
				zap.Stringer("event", ev.Kind),
				zap.Any("panic", r))
		}
	}()
	fn()
}
