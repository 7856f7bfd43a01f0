package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/proxima-xr/scenematch/internal/build"
)

const (
	stageWorkingSet   = "pipeline.collectWorkingSet"
	stageTraitCache   = "pipeline.cacheTraits"
	stageRating       = "pipeline.rate"
	stageIntersection = "pipeline.intersect"
	stageAvailability = "pipeline.filterAvailable"
	stageReduction    = "pipeline.reduce"
	stageResolution   = "pipeline.resolve"
	stageResults      = "pipeline.fillResults"
	stageLifecycle    = "pipeline.advance"
	stageDispatch     = "pipeline.drain"
)

var (
	tickDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "tick_duration_ms",
		Help:                            "The duration (in ms) of one pipeline tick.",
		Buckets:                         []float64{0.1, 0.5, 1, 2, 4, 8, 16, 33, 66, 100},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})

	stageDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "stage_duration_ms",
		Help:                            "The duration (in ms) of each pipeline stage.",
		Buckets:                         []float64{0.01, 0.05, 0.1, 0.5, 1, 4, 16},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"stage"})

	workingSetGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "working_set_slots",
		Help:      "The number of query slots evaluated in the last tick.",
	})

	lifecycleEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "lifecycle_events_total",
		Help:      "The total number of lifecycle events dispatched, by kind.",
	}, []string{"event"})

	handlerPanicCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "handler_panics_total",
		Help:      "The total number of handler or observer panics recovered, by event kind.",
	}, []string{"event"})

	staleEventsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "stale_events_total",
		Help:      "The total number of events dropped because their query was removed.",
	})

	setAttemptsExhaustedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "set_attempts_exhausted_total",
		Help:      "The total number of set resolutions that ran out of relation evaluations.",
	})
)
