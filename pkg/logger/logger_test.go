package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		log           func(Logger)
		expectedLevel zapcore.Level
	}{
		{name: "debug", log: func(l Logger) { l.Debug("ABC") }, expectedLevel: zapcore.DebugLevel},
		{name: "info", log: func(l Logger) { l.Info("ABC") }, expectedLevel: zapcore.InfoLevel},
		{name: "warn", log: func(l Logger) { l.Warn("ABC") }, expectedLevel: zapcore.WarnLevel},
		{name: "error", log: func(l Logger) { l.Error("ABC") }, expectedLevel: zapcore.ErrorLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dut, logs := NewObserverLogger("debug")
			tc.log(dut)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, "ABC", entry.Message)
			require.Equal(t, tc.expectedLevel, entry.Level)
			require.Empty(t, entry.ContextMap())
		})
	}
}

func TestWithContextCarriesTick(t *testing.T) {
	dut, logs := NewObserverLogger("debug")
	ctx := ContextWithTick(context.Background(), 42)

	dut.InfoWithContext(ctx, "tick", zap.String("stage", "rating"))
	dut.WarnWithContext(context.Background(), "no tick")

	require.Equal(t, 2, logs.Len())
	all := logs.All()
	require.Equal(t, map[string]interface{}{"stage": "rating", "tick": uint64(42)}, all[0].ContextMap())
	require.Empty(t, all[1].ContextMap())
}

func TestWith(t *testing.T) {
	dut, logs := NewObserverLogger("info")
	child := dut.With(zap.Int32("query_id", 7))

	child.Debug("dropped")
	child.Info("kept")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, map[string]interface{}{"query_id": int32(7)}, logs.All()[0].ContextMap())
}

func TestNewLogger(t *testing.T) {
	t.Run("none_level_is_noop", func(t *testing.T) {
		l, err := NewLogger("json", "none")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("json", "verbose")
		require.ErrorContains(t, err, "unknown log level")
	})

	t.Run("unknown_format", func(t *testing.T) {
		_, err := NewLogger("xml", "info")
		require.ErrorContains(t, err, "unknown log format")
	})

	t.Run("text_format", func(t *testing.T) {
		l, err := NewLogger("text", "debug")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("must_panics_on_error", func(t *testing.T) {
		require.Panics(t, func() { MustNewLogger("json", "loud") })
	})
}
