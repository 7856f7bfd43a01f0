// Package config contains all knobs and defaults used to configure the scenematch
// engine and the scenematch binary.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultReducer           = "min"
	DefaultConfirmTicks      = 1
	DefaultRatingWorkers     = 1
	DefaultRatingCacheSize   = 100000
	DefaultSetCandidateLimit = 8
	DefaultSetAttemptLimit   = 4096

	DefaultTicks        = 0
	DefaultTickInterval = 100 * time.Millisecond
	DefaultLoadTimeout  = 5 * time.Second
)

// MatchingConfig tunes the matching pipeline.
type MatchingConfig struct {
	// Reducer combines per-condition ratings into one score: "min" or "product".
	Reducer string

	// ConfirmTicks is how many consecutive matched ticks a query waits in Acquiring.
	ConfirmTicks int

	// RatingWorkers is the number of goroutines rating the working set. 1 rates on the
	// caller goroutine.
	RatingWorkers int

	// SetCandidateLimit bounds the ranked candidates tried per set member.
	SetCandidateLimit int

	// SetAttemptLimit bounds the relation evaluations one set may spend per tick.
	SetAttemptLimit int
}

// RatingCacheConfig configures the memoization of condition ratings.
type RatingCacheConfig struct {
	Enabled bool
	MaxSize int64
}

// SceneConfig defines the scene replayed by the run command.
type SceneConfig struct {
	Path string

	// Ticks is how many ticks to run. Zero runs until the scene ends or the process is
	// interrupted.
	Ticks        int
	TickInterval time.Duration

	// LoadTimeout bounds the retries while the scene file becomes readable.
	LoadTimeout time.Duration
}

// LogConfig defines the logger output.
type LogConfig struct {
	// Format is the log format: 'text' or 'json'.
	Format string

	// Level is the log level: 'none', 'debug', 'info', 'warn' or 'error'.
	Level string
}

type OTLPConfig struct {
	Endpoint string
	Insecure bool
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPConfig
	SampleRatio float64
	ServiceName string

	// SlowTickThreshold only exports the traces of ticks lasting at least this long.
	// Zero exports every sampled tick.
	SlowTickThreshold time.Duration
}

// MetricsConfig defines configurations for serving prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type Config struct {
	Matching    MatchingConfig
	RatingCache RatingCacheConfig
	Scene       SceneConfig
	Log         LogConfig
	Trace       TraceConfig
	Metrics     MetricsConfig
}

// DefaultConfig returns the scenematch default configuration.
func DefaultConfig() *Config {
	return &Config{
		Matching: MatchingConfig{
			Reducer:           DefaultReducer,
			ConfirmTicks:      DefaultConfirmTicks,
			RatingWorkers:     DefaultRatingWorkers,
			SetCandidateLimit: DefaultSetCandidateLimit,
			SetAttemptLimit:   DefaultSetAttemptLimit,
		},
		RatingCache: RatingCacheConfig{
			Enabled: true,
			MaxSize: DefaultRatingCacheSize,
		},
		Scene: SceneConfig{
			Ticks:        DefaultTicks,
			TickInterval: DefaultTickInterval,
			LoadTimeout:  DefaultLoadTimeout,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPConfig{
				Endpoint: "0.0.0.0:4317",
				Insecure: true,
			},
			SampleRatio: 0.2,
			ServiceName: "scenematch",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// Verify returns the first problem found in cfg, or nil.
func (cfg *Config) Verify() error {
	if err := cfg.Matching.Verify(); err != nil {
		return err
	}

	if cfg.RatingCache.Enabled && cfg.RatingCache.MaxSize <= 0 {
		return errors.New("config 'ratingCache.maxSize' must be greater than zero when the rating cache is enabled")
	}

	if cfg.Scene.Ticks < 0 {
		return errors.New("config 'scene.ticks' cannot be negative")
	}

	if cfg.Scene.TickInterval < 0 {
		return errors.New("config 'scene.tickInterval' cannot be negative")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json'], got '%s'", cfg.Log.Format)
	}

	switch cfg.Log.Level {
	case "none", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error'], got '%s'", cfg.Log.Level)
	}

	if cfg.Trace.Enabled {
		if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
			return errors.New("config 'trace.sampleRatio' must be within [0, 1]")
		}
		if cfg.Trace.OTLP.Endpoint == "" {
			return errors.New("config 'trace.otlp.endpoint' is required when tracing is enabled")
		}
		if cfg.Trace.SlowTickThreshold < 0 {
			return errors.New("config 'trace.slowTickThreshold' cannot be negative")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("config 'metrics.addr' is required when metrics are enabled")
	}

	return nil
}

// Verify checks the matching knobs on their own so engines built without a full
// Config can reuse it.
func (m *MatchingConfig) Verify() error {
	switch m.Reducer {
	case "min", "product":
	default:
		return fmt.Errorf("config 'matching.reducer' must be one of ['min', 'product'], got '%s'", m.Reducer)
	}

	if m.ConfirmTicks < 1 {
		return errors.New("config 'matching.confirmTicks' must be at least 1")
	}

	if m.RatingWorkers < 1 {
		return errors.New("config 'matching.ratingWorkers' must be at least 1")
	}

	if m.SetCandidateLimit < 1 {
		return errors.New("config 'matching.setCandidateLimit' must be at least 1")
	}

	if m.SetAttemptLimit < 1 {
		return errors.New("config 'matching.setAttemptLimit' must be at least 1")
	}

	return nil
}
