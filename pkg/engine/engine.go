// Package engine is the entry point of scenematch. An Engine owns the query registry
// and the matching pipeline, and matches registered queries against a trait store every
// time Update is called.
//
// An Engine is not safe for concurrent use. Register, Remove and Update are expected to
// run on one goroutine; lifecycle handlers run synchronously inside Update and may call
// back into the Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/arbiter"
	"github.com/proxima-xr/scenematch/internal/pipeline"
	"github.com/proxima-xr/scenematch/internal/ratingcache"
	"github.com/proxima-xr/scenematch/internal/registry"
	"github.com/proxima-xr/scenematch/internal/scheduler"
	"github.com/proxima-xr/scenematch/pkg/engine/config"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

type (
	// Observer is called with every lifecycle event after the query's own handler.
	Observer = pipeline.Observer

	// Snapshot is a copy of the pipeline intermediates of the last tick.
	Snapshot = pipeline.Snapshot

	SlotSnapshot = pipeline.SlotSnapshot
	SetSnapshot  = pipeline.SetSnapshot
)

// ErrNilStore is returned by New without a trait store.
var ErrNilStore = errors.New("trait store is nil")

// ErrReentrantUpdate is returned by Update when called from a lifecycle handler.
var ErrReentrantUpdate = pipeline.ErrReentrantRun

type Engine struct {
	logger    logger.Logger
	cfg       *config.Config
	clock     func() time.Time
	observers []Observer

	store    traits.Reader
	ids      *query.IDAllocator
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	cache    *ratingcache.Cache
}

type Option func(*Engine)

func WithLogger(logger logger.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets the matching and rating cache configuration. Other sections of cfg
// are ignored by the Engine.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock replaces the wall clock used for timeouts and search intervals.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, observer)
	}
}

// New returns an Engine matching queries against store.
func New(store traits.Reader, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	e := &Engine{
		logger: logger.NewNoopLogger(),
		cfg:    config.DefaultConfig(),
		clock:  time.Now,
		store:  store,
		ids:    &query.IDAllocator{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Matching.Verify(); err != nil {
		return nil, err
	}
	reducer, err := pipeline.ParseReducer(e.cfg.Matching.Reducer)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []pipeline.PipelineOption{
		pipeline.WithLogger(e.logger),
		pipeline.WithReducer(reducer),
		pipeline.WithConfirmTicks(e.cfg.Matching.ConfirmTicks),
		pipeline.WithRatingWorkers(e.cfg.Matching.RatingWorkers),
		pipeline.WithSetCandidateLimit(e.cfg.Matching.SetCandidateLimit),
		pipeline.WithSetAttemptLimit(e.cfg.Matching.SetAttemptLimit),
	}

	if e.cfg.RatingCache.Enabled {
		if _, ok := store.(traits.Versioned); ok {
			e.cache, err = ratingcache.New(
				ratingcache.WithMaxSize(e.cfg.RatingCache.MaxSize),
				ratingcache.WithLogger(e.logger),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create rating cache: %w", err)
			}
			pipelineOpts = append(pipelineOpts, pipeline.WithRatingCache(e.cache))
		} else {
			e.logger.Info("rating cache disabled: trait store is not versioned")
		}
	}

	for _, observer := range e.observers {
		pipelineOpts = append(pipelineOpts, pipeline.WithObserver(observer))
	}

	e.registry = registry.New(arbiter.New(), scheduler.New(),
		registry.WithLogger(e.logger),
		registry.WithClock(e.clock),
		registry.WithIDAllocator(e.ids),
	)
	e.pipeline = pipeline.New(e.registry, store, pipelineOpts...)

	e.logger.Debug("engine created",
		zap.String("reducer", reducer.String()),
		zap.Int("confirm_ticks", e.cfg.Matching.ConfirmTicks),
		zap.Int("rating_workers", e.cfg.Matching.RatingWorkers),
		zap.Bool("rating_cache", e.cache != nil))

	return e, nil
}

// NewID returns a QueryMatchID under queryID that no live or past registration used.
func (e *Engine) NewID(queryID int32) query.QueryMatchID {
	return e.ids.Next(queryID)
}

// Register adds a standalone query. The query starts searching on the next Update.
func (e *Engine) Register(id query.QueryMatchID, args query.Args) error {
	_, err := e.registry.Register(id, args)
	return err
}

// RegisterSet adds a set query. Malformed relations are logged and excluded, the set is
// still registered.
func (e *Engine) RegisterSet(id query.QueryMatchID, args query.SetArgs) error {
	_, err := e.registry.RegisterSet(id, args)
	return err
}

// Remove unregisters a query or a set, releasing what it bound. Removing any member of a
// set removes the whole set. It is safe to call from a lifecycle handler; pending events
// of the removed query are dropped. It returns false when id is unknown.
func (e *Engine) Remove(id query.QueryMatchID) bool {
	return e.registry.Remove(id)
}

// Clear removes every query and set.
func (e *Engine) Clear() {
	e.registry.Clear()
}

// Update runs one matching tick and dispatches the resulting lifecycle events.
func (e *Engine) Update(ctx context.Context) error {
	return e.pipeline.Run(ctx)
}

// Reacquire sends an unavailable query or set back to searching. It returns false when
// id is unknown or not unavailable.
func (e *Engine) Reacquire(id query.QueryMatchID) bool {
	return e.pipeline.Reacquire(id)
}

// State returns the lifecycle state of a query or a set.
func (e *Engine) State(id query.QueryMatchID) (query.State, bool) {
	return e.pipeline.State(id)
}

// Count returns the number of live query slots, set members included.
func (e *Engine) Count() int {
	return e.registry.Count()
}

// SetCount returns the number of live sets.
func (e *Engine) SetCount() int {
	return e.registry.SetCount()
}

// Tick returns the number of Update calls so far.
func (e *Engine) Tick() uint64 {
	return e.pipeline.Tick()
}

func (e *Engine) Snapshot() Snapshot {
	return e.pipeline.Snapshot()
}

func (e *Engine) AddObserver(observer Observer) {
	e.pipeline.AddObserver(observer)
}

// Close releases the rating cache. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
