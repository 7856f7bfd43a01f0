package run

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/proxima-xr/scenematch/cmd/util"
)

// bindRunFlagsFunc binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag("scene.path", flags.Lookup("scene"))
		util.MustBindEnv("scene.path", "SCENEMATCH_SCENE_PATH", "SCENEMATCH_SCENE")

		util.MustBindPFlag("scene.ticks", flags.Lookup("ticks"))
		util.MustBindEnv("scene.ticks", "SCENEMATCH_SCENE_TICKS")

		util.MustBindPFlag("scene.tickInterval", flags.Lookup("tick-interval"))
		util.MustBindEnv("scene.tickInterval", "SCENEMATCH_SCENE_TICK_INTERVAL", "SCENEMATCH_SCENE_TICKINTERVAL")

		util.MustBindPFlag("scene.loadTimeout", flags.Lookup("scene-load-timeout"))
		util.MustBindEnv("scene.loadTimeout", "SCENEMATCH_SCENE_LOAD_TIMEOUT", "SCENEMATCH_SCENE_LOADTIMEOUT")

		util.MustBindPFlag("matching.reducer", flags.Lookup("reducer"))
		util.MustBindEnv("matching.reducer", "SCENEMATCH_MATCHING_REDUCER")

		util.MustBindPFlag("matching.confirmTicks", flags.Lookup("confirm-ticks"))
		util.MustBindEnv("matching.confirmTicks", "SCENEMATCH_MATCHING_CONFIRM_TICKS", "SCENEMATCH_MATCHING_CONFIRMTICKS")

		util.MustBindPFlag("matching.ratingWorkers", flags.Lookup("rating-workers"))
		util.MustBindEnv("matching.ratingWorkers", "SCENEMATCH_MATCHING_RATING_WORKERS", "SCENEMATCH_MATCHING_RATINGWORKERS")

		util.MustBindPFlag("matching.setCandidateLimit", flags.Lookup("set-candidate-limit"))
		util.MustBindEnv("matching.setCandidateLimit", "SCENEMATCH_MATCHING_SET_CANDIDATE_LIMIT", "SCENEMATCH_MATCHING_SETCANDIDATELIMIT")

		util.MustBindPFlag("matching.setAttemptLimit", flags.Lookup("set-attempt-limit"))
		util.MustBindEnv("matching.setAttemptLimit", "SCENEMATCH_MATCHING_SET_ATTEMPT_LIMIT", "SCENEMATCH_MATCHING_SETATTEMPTLIMIT")

		util.MustBindPFlag("ratingCache.enabled", flags.Lookup("rating-cache-enabled"))
		util.MustBindEnv("ratingCache.enabled", "SCENEMATCH_RATING_CACHE_ENABLED", "SCENEMATCH_RATINGCACHE_ENABLED")

		util.MustBindPFlag("ratingCache.maxSize", flags.Lookup("rating-cache-size"))
		util.MustBindEnv("ratingCache.maxSize", "SCENEMATCH_RATING_CACHE_SIZE", "SCENEMATCH_RATINGCACHE_MAXSIZE")

		util.MustBindPFlag("log.format", flags.Lookup("log-format"))
		util.MustBindEnv("log.format", "SCENEMATCH_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup("log-level"))
		util.MustBindEnv("log.level", "SCENEMATCH_LOG_LEVEL")

		util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
		util.MustBindEnv("trace.enabled", "SCENEMATCH_TRACE_ENABLED")

		util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
		util.MustBindEnv("trace.otlp.endpoint", "SCENEMATCH_TRACE_OTLP_ENDPOINT")

		util.MustBindPFlag("trace.otlp.insecure", flags.Lookup("trace-otlp-insecure"))
		util.MustBindEnv("trace.otlp.insecure", "SCENEMATCH_TRACE_OTLP_INSECURE")

		util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
		util.MustBindEnv("trace.sampleRatio", "SCENEMATCH_TRACE_SAMPLE_RATIO", "SCENEMATCH_TRACE_SAMPLERATIO")

		util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
		util.MustBindEnv("trace.serviceName", "SCENEMATCH_TRACE_SERVICE_NAME", "SCENEMATCH_TRACE_SERVICENAME")

		util.MustBindPFlag("trace.slowTickThreshold", flags.Lookup("trace-slow-tick-threshold"))
		util.MustBindEnv("trace.slowTickThreshold", "SCENEMATCH_TRACE_SLOW_TICK_THRESHOLD", "SCENEMATCH_TRACE_SLOWTICKTHRESHOLD")

		util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
		util.MustBindEnv("metrics.enabled", "SCENEMATCH_METRICS_ENABLED")

		util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
		util.MustBindEnv("metrics.addr", "SCENEMATCH_METRICS_ADDR")
	}
}
