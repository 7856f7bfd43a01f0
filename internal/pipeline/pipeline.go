// Package pipeline runs the staged matching of registered queries against the trait
// store. Each call to Run is one tick:
//
//	working set -> trait caching -> rating -> intersection -> availability
//	-> reduction -> resolution -> result filling -> lifecycle -> dispatch
//
// Every stage narrows or annotates the working set held in the registry columns. Nothing
// runs between ticks and the pipeline holds no locks; the registry must only be touched
// from the goroutine calling Run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/ratingcache"
	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/internal/statemachine"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/telemetry"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

var tracer = otel.Tracer("internal/pipeline")

const (
	DefaultConfirmTicks      = 1
	DefaultRatingWorkers     = 1
	DefaultSetCandidateLimit = 8
	DefaultSetAttemptLimit   = 4096
)

// ErrReentrantRun is returned when Run is called from inside a handler or observer.
var ErrReentrantRun = errors.New("pipeline is already running")

// Observer receives every lifecycle event after the handlers ran.
type Observer func(query.Event)

// Pipeline is the per-tick matcher over a registry and a trait store.
type Pipeline struct {
	reg       *registry.Registry
	store     traits.Reader
	versioned traits.Versioned

	logger            logger.Logger
	cache             *ratingcache.Cache
	reducer           Reducer
	confirmTicks      int
	ratingWorkers     int
	setCandidateLimit int
	setAttemptLimit   int
	observers         []Observer

	tick    uint64
	running bool

	// per-tick working sets, reused between ticks
	working     []int
	workingSets []int
	idle        []int
	idleSets    []int
	fulfilled   []int
	stale       []int
	units       []unit
	due         map[query.QueryMatchID]struct{}
	pending     []pendingEvent

	// scratch for ranking candidates
	ranked []traits.DataID
	values []float64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithLogger(logger logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRatingCache memoizes condition ratings. It only takes effect when the store
// implements traits.Versioned.
func WithRatingCache(cache *ratingcache.Cache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithReducer selects how per-condition ratings are combined.
func WithReducer(reducer Reducer) PipelineOption {
	return func(p *Pipeline) {
		p.reducer = reducer
	}
}

// WithConfirmTicks sets how many consecutive matched ticks a query spends in Acquiring.
func WithConfirmTicks(n int) PipelineOption {
	return func(p *Pipeline) {
		p.confirmTicks = n
	}
}

// WithRatingWorkers rates disjoint ranges of the working set on n goroutines.
func WithRatingWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		p.ratingWorkers = n
	}
}

// WithSetCandidateLimit bounds how many ranked candidates of each set member are tried.
func WithSetCandidateLimit(n int) PipelineOption {
	return func(p *Pipeline) {
		p.setCandidateLimit = n
	}
}

// WithSetAttemptLimit bounds how many relation evaluations one set may spend per tick.
func WithSetAttemptLimit(n int) PipelineOption {
	return func(p *Pipeline) {
		p.setAttemptLimit = n
	}
}

func WithObserver(observer Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observers = append(p.observers, observer)
	}
}

// New wires a Pipeline over reg and store.
func New(reg *registry.Registry, store traits.Reader, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		reg:               reg,
		store:             store,
		logger:            logger.NewNoopLogger(),
		reducer:           ReducerMin,
		confirmTicks:      DefaultConfirmTicks,
		ratingWorkers:     DefaultRatingWorkers,
		setCandidateLimit: DefaultSetCandidateLimit,
		setAttemptLimit:   DefaultSetAttemptLimit,
		due:               make(map[query.QueryMatchID]struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if v, ok := store.(traits.Versioned); ok {
		p.versioned = v
	}

	return p
}

// AddObserver registers an observer for every future event.
func (p *Pipeline) AddObserver(observer Observer) {
	p.observers = append(p.observers, observer)
}

// Tick returns the number of completed or running ticks.
func (p *Pipeline) Tick() uint64 {
	return p.tick
}

// Running reports whether a tick is in progress, which is the case while handlers run.
func (p *Pipeline) Running() bool {
	return p.running
}

// Run executes one tick. Handlers and observers run synchronously at the end of it.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if p.running {
		return ErrReentrantRun
	}
	p.running = true
	defer func() { p.running = false }()

	p.tick++
	ctx = logger.ContextWithTick(ctx, p.tick)
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int64("tick", int64(p.tick)),
		attribute.Int("slots", p.reg.Count()),
	))
	defer func() {
		if err != nil {
			telemetry.TraceError(span, err)
		}
		span.End()
	}()

	start := time.Now()
	now := p.reg.Now()

	p.stage(ctx, stageWorkingSet, func(ctx context.Context) error {
		p.collectWorkingSet(now)
		return nil
	})
	p.stage(ctx, stageTraitCache, func(ctx context.Context) error {
		p.cacheTraits(ctx)
		return nil
	})
	if err := p.stage(ctx, stageRating, p.rate); err != nil {
		return fmt.Errorf("rating stage: %w", err)
	}
	p.stage(ctx, stageIntersection, func(ctx context.Context) error {
		p.intersect()
		return nil
	})
	p.stage(ctx, stageAvailability, func(ctx context.Context) error {
		p.filterAvailable()
		return nil
	})
	p.stage(ctx, stageReduction, func(ctx context.Context) error {
		p.reduce()
		return nil
	})
	p.stage(ctx, stageResolution, func(ctx context.Context) error {
		p.resolve(ctx)
		return nil
	})
	p.stage(ctx, stageResults, func(ctx context.Context) error {
		p.fillResults()
		return nil
	})
	p.stage(ctx, stageLifecycle, func(ctx context.Context) error {
		p.advance(ctx, now)
		return nil
	})
	p.stage(ctx, stageDispatch, func(ctx context.Context) error {
		p.drain(ctx)
		return nil
	})

	workingSetGauge.Set(float64(len(p.working)))
	tickDurationHistogram.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	stageDurationHistogram.WithLabelValues(name).Observe(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		telemetry.TraceError(span, err)
		p.logger.ErrorWithContext(ctx, "pipeline stage failed", zap.String("stage", name), zap.Error(err))
	}
	return err
}

// collectWorkingSet picks the slots evaluated this tick: every active slot tracking or
// acquiring, and searching slots whose search task is due. Active searches that are not
// due land in the idle lists so their timeouts still run.
func (p *Pipeline) collectWorkingSet(now time.Time) {
	p.working = p.working[:0]
	p.workingSets = p.workingSets[:0]
	p.idle = p.idle[:0]
	p.idleSets = p.idleSets[:0]

	clear(p.due)
	p.reg.Queue().Due(now, func(id query.QueryMatchID) {
		p.due[id] = struct{}{}
	})

	for slot, live := range p.reg.Live {
		if !live || p.reg.Owners[slot] != registry.NoSet {
			continue
		}
		machine := &p.reg.Machines[slot]
		switch {
		case p.eligible(machine, p.reg.IDs[slot], p.reg.Args[slot].SearchInterval):
			p.working = append(p.working, slot)
		case machine.Active():
			p.idle = append(p.idle, slot)
		}
	}

	for idx := range p.reg.Sets {
		set := &p.reg.Sets[idx]
		if !set.Live {
			continue
		}
		if !p.eligible(&set.Machine, set.ID, set.Args.SearchInterval) {
			if set.Machine.Active() {
				p.idleSets = append(p.idleSets, idx)
			}
			continue
		}
		p.workingSets = append(p.workingSets, idx)
		p.working = append(p.working, set.Slots...)
	}
}

func (p *Pipeline) eligible(m *statemachine.Machine, id query.QueryMatchID, interval time.Duration) bool {
	if !m.Active() {
		return false
	}
	if !m.State.Searching() || interval <= 0 {
		return true
	}
	_, due := p.due[id]
	return due
}
