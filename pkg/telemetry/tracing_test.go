package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/proxima-xr/scenematch/pkg/telemetry/mocks"
)

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := MustNewTracerProvider(
		WithAttributes(semconv.ServiceNameKey.String("servicename")),
		WithSamplingRatio(1),
		WithExporter(exporter),
	)

	spanRecorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(spanRecorder)

	_, span := tp.Tracer("").Start(context.Background(), "test")
	span.End()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "test", spans[0].Name())

	require.NoError(t, tp.Close(context.Background()))
	require.NoError(t, tp.Close(context.Background()))
}

func TestTracingToCollector(t *testing.T) {
	collector, addr := mocks.NewMockCollector(t)

	tp := MustNewTracerProvider(
		WithOTLPEndpoint(addr),
		WithOTLPInsecure(),
		WithSamplingRatio(1),
	)

	_, span := tp.Tracer("").Start(context.Background(), "pipeline.Run")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tp.Close(ctx))

	require.Equal(t, 1, collector.ExportCount())
	require.Equal(t, []string{"pipeline.Run"}, collector.SpanNames())
}

func TestSlowTickSpanExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(NewSlowTickSpanExporter(exporter, WithThreshold(time.Hour))),
	)
	ctx, root := tp.Tracer("").Start(context.Background(), "fast")
	_, child := tp.Tracer("").Start(ctx, "stage")
	child.End()
	root.End()
	require.Empty(t, exporter.GetSpans())

	exporter.Reset()
	tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(NewSlowTickSpanExporter(exporter, WithThreshold(time.Nanosecond))),
	)
	ctx, root = tp.Tracer("").Start(context.Background(), "slow")
	_, child = tp.Tracer("").Start(ctx, "stage")
	child.End()
	time.Sleep(time.Millisecond)
	root.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	require.ElementsMatch(t, []string{"slow", "stage"}, names)
}

func TestNoop(t *testing.T) {
	tp := Noop()
	_, span := tp.Tracer("").Start(context.Background(), "test")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, tp.Close(context.Background()))
}

func TestTraceError(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("").Start(context.Background(), "pipeline.rate")
	TraceError(span, context.Canceled)
	span.End()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, context.Canceled.Error(), spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, "exception", spans[0].Events()[0].Name)
}
