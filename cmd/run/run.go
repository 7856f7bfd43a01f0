// Package run contains the command to replay a scene through the matching engine.
package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/proxima-xr/scenematch/internal/build"
	"github.com/proxima-xr/scenematch/pkg/engine"
	"github.com/proxima-xr/scenematch/pkg/engine/config"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/scene"
	"github.com/proxima-xr/scenematch/pkg/telemetry"
	"github.com/proxima-xr/scenematch/pkg/traits/memory"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scene through the matching engine",
		Long: `Replay a scene through the matching engine.

The scene's entities are written into an in-memory trait store one tick at a time, its
queries and sets are registered, and every lifecycle event is logged.`,
		RunE: run,
		Args: cobra.NoArgs,
	}

	defaultConfig := config.DefaultConfig()
	flags := cmd.Flags()

	flags.String("scene", defaultConfig.Scene.Path, "the path of the scene file to replay")

	flags.Int("ticks", defaultConfig.Scene.Ticks, "the number of ticks to run. 0 runs until the scene ends")

	flags.Duration("tick-interval", defaultConfig.Scene.TickInterval, "the wall clock time between two ticks. 0 runs the ticks back to back")

	flags.Duration("scene-load-timeout", defaultConfig.Scene.LoadTimeout, "how long to retry reading the scene file before giving up")

	flags.String("reducer", defaultConfig.Matching.Reducer, "how per-condition ratings are combined into a match score: 'min' or 'product'")

	flags.Int("confirm-ticks", defaultConfig.Matching.ConfirmTicks, "the number of consecutive matched ticks before a query is acquired")

	flags.Int("rating-workers", defaultConfig.Matching.RatingWorkers, "the number of goroutines rating queries in parallel")

	flags.Int("set-candidate-limit", defaultConfig.Matching.SetCandidateLimit, "the number of ranked candidates tried per set member")

	flags.Int("set-attempt-limit", defaultConfig.Matching.SetAttemptLimit, "the number of relation evaluations a set may spend per tick")

	flags.Bool("rating-cache-enabled", defaultConfig.RatingCache.Enabled, "enable/disable memoization of condition ratings")

	flags.Int64("rating-cache-size", defaultConfig.RatingCache.MaxSize, "the maximum number of memoized condition ratings")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")

	flags.Bool("trace-otlp-insecure", defaultConfig.Trace.OTLP.Insecure, "disable TLS towards the trace collector")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of ticks to trace")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Duration("trace-slow-tick-threshold", defaultConfig.Trace.SlowTickThreshold, "only export the traces of ticks lasting at least this long. 0 exports every sampled tick")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

// ReadConfig returns the scenematch configuration based on the values provided in the 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/scenematch', '$HOME/.scenematch', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Verify(); err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	runner := &Runner{Logger: log}
	return runner.Run(cmd.Context(), cfg)
}

// Runner replays a scene.
type Runner struct {
	Logger logger.Logger

	mu     sync.Mutex
	events map[query.EventKind]int
}

// Events returns how many lifecycle events of each kind the last Run observed.
func (r *Runner) Events() map[query.EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[query.EventKind]int, len(r.events))
	for kind, n := range r.events {
		out[kind] = n
	}
	return out
}

// telemetryConfig returns the function that must be called to shut down tracing.
func (r *Runner) telemetryConfig(cfg *config.Config) func() error {
	if !cfg.Trace.Enabled {
		telemetry.Noop()
		return func() error {
			return nil
		}
	}

	r.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', insecure: %t",
		cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint, cfg.Trace.OTLP.Insecure))

	options := []telemetry.TracerOption{
		telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
		telemetry.WithAttributes(
			semconv.ServiceNameKey.String(cfg.Trace.ServiceName),
			semconv.ServiceVersionKey.String(build.Version),
		),
		telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		telemetry.WithSlowTickThreshold(cfg.Trace.SlowTickThreshold),
	}
	if cfg.Trace.OTLP.Insecure {
		options = append(options, telemetry.WithOTLPInsecure())
	}

	tp := telemetry.MustNewTracerProvider(options...)
	return func() error {
		// the batch span processor can take up to 5 seconds to flush
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		return tp.Close(ctx)
	}
}

// loadScene reads and validates the scene file, retrying while the file cannot be read
// until cfg.LoadTimeout elapses. An invalid scene fails at once.
func (r *Runner) loadScene(ctx context.Context, cfg config.SceneConfig) (*scene.Scene, error) {
	if cfg.Path == "" {
		return nil, errors.New("missing scene file")
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.LoadTimeout

	var s *scene.Scene
	err := backoff.Retry(
		func() error {
			loaded, err := scene.Load(cfg.Path)
			if err != nil {
				if errors.Is(err, scene.ErrInvalidScene) {
					return backoff.Permanent(err)
				}
				r.Logger.Warn("failed to load scene, retrying", zap.String("path", cfg.Path), zap.Error(err))
				return err
			}
			if err := loaded.Validate(); err != nil {
				return backoff.Permanent(err)
			}
			s = loaded
			return nil
		},
		backoff.WithContext(policy, ctx),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Runner) observe(ev query.Event) {
	r.mu.Lock()
	r.events[ev.Kind]++
	r.mu.Unlock()

	fields := []zap.Field{
		zap.Uint64("tick", ev.Tick),
		zap.Stringer("event", ev.Kind),
		zap.Stringer("query_match_id", ev.QueryMatchID),
		zap.Stringer("state", ev.State),
	}
	switch {
	case ev.Result != nil:
		fields = append(fields, zap.Int64("data_id", int64(ev.Result.DataID)))
	case ev.SetResult != nil:
		members := make(map[string]int64, len(ev.SetResult.Members))
		for name, m := range ev.SetResult.Members {
			members[name] = int64(m.DataID)
		}
		fields = append(fields, zap.Any("members", members))
	}
	r.Logger.Info("lifecycle event", fields...)
}

// Run returns an error if the scene could not be replayed. An interrupt stops the
// replay early without an error.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProviderCloser := r.telemetryConfig(cfg)
	defer func() {
		if err := tracerProviderCloser(); err != nil {
			r.Logger.Error("failed to shut down tracing", zap.Error(err))
		}
	}()

	s, err := r.loadScene(ctx, cfg.Scene)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.events = map[query.EventKind]int{}
	r.mu.Unlock()

	// The engine runs on scene time: tick n happens n tick intervals after the start,
	// however fast the ticks actually run.
	interval := cfg.Scene.TickInterval
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	start := time.Now()
	var tick int
	clock := func() time.Time {
		return start.Add(time.Duration(tick) * interval)
	}

	store := memory.New()
	eng, err := engine.New(store,
		engine.WithLogger(r.Logger),
		engine.WithConfig(cfg),
		engine.WithClock(clock),
		engine.WithObserver(r.observe),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	registrations, err := s.Register(eng)
	if err != nil {
		return err
	}

	ticks := cfg.Scene.Ticks
	if ticks == 0 {
		ticks = s.Length()
	}

	r.Logger.Info(
		"starting scene replay...",
		zap.String("scene", s.Name),
		zap.Int("ticks", ticks),
		zap.Int("queries", eng.Count()),
		zap.Int("sets", eng.SetCount()),
		zap.String("version", build.Version),
		zap.String("go-version", goruntime.Version()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			r.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start prometheus metrics server: %w", err)
			}
			r.Logger.Info("metrics server shut down.")
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()

		var pace <-chan time.Time
		if cfg.Scene.TickInterval > 0 {
			ticker := time.NewTicker(cfg.Scene.TickInterval)
			defer ticker.Stop()
			pace = ticker.C
		}

		for ; tick < ticks; tick++ {
			if gctx.Err() != nil {
				r.Logger.Info("scene replay interrupted", zap.Int("tick", tick))
				return nil
			}

			changed := s.Apply(store, tick)
			if err := eng.Update(gctx); err != nil {
				return fmt.Errorf("tick %d: %w", tick, err)
			}
			r.Logger.Debug("tick done", zap.Int("tick", tick), zap.Int("entities_changed", changed))

			if pace != nil {
				select {
				case <-gctx.Done():
				case <-pace:
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	for _, reg := range registrations {
		state, _ := eng.State(reg.ID)
		r.Logger.Info("final query state",
			zap.String("name", reg.Name),
			zap.Stringer("query_match_id", reg.ID),
			zap.Bool("set", reg.Set),
			zap.Stringer("state", state))
	}

	r.Logger.Info("scene replay done", zap.Uint64("ticks", eng.Tick()))
	return nil
}
