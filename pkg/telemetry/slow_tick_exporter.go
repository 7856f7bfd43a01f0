package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const DefaultSlowTickThreshold = 50 * time.Millisecond

type slowTickSpanExporter struct {
	wrappedExporter sdktrace.SpanExporter

	threshold time.Duration
}

type SlowTickSpanExporterOption func(o *SlowTickSpanExporterOptions)

type SlowTickSpanExporterOptions struct {
	Threshold time.Duration
}

func WithThreshold(threshold time.Duration) SlowTickSpanExporterOption {
	return func(o *SlowTickSpanExporterOptions) {
		o.Threshold = threshold
	}
}

var _ sdktrace.SpanExporter = (*slowTickSpanExporter)(nil)

// NewSlowTickSpanExporter creates a SpanExporter that forwards to exporter only the
// traces whose root span, one pipeline tick, lasted at least the threshold. Stage spans
// follow their tick.
//
// If the exporter is nil, nothing is exported.
func NewSlowTickSpanExporter(exporter sdktrace.SpanExporter, options ...SlowTickSpanExporterOption) sdktrace.SpanExporter {
	o := SlowTickSpanExporterOptions{
		Threshold: DefaultSlowTickThreshold,
	}
	for _, opt := range options {
		opt(&o)
	}

	return &slowTickSpanExporter{
		wrappedExporter: exporter,
		threshold:       o.Threshold,
	}
}

func (s *slowTickSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if s.wrappedExporter == nil {
		return nil
	}

	slow := make(map[trace.TraceID]struct{})
	for _, span := range spans {
		if span.Parent().IsValid() {
			continue
		}
		if span.EndTime().Sub(span.StartTime()) >= s.threshold {
			slow[span.SpanContext().TraceID()] = struct{}{}
		}
	}
	if len(slow) == 0 {
		return nil
	}

	kept := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, span := range spans {
		if _, ok := slow[span.SpanContext().TraceID()]; ok {
			kept = append(kept, span)
		}
	}

	return s.wrappedExporter.ExportSpans(ctx, kept)
}

func (s *slowTickSpanExporter) Shutdown(ctx context.Context) error {
	if s.wrappedExporter == nil {
		return nil
	}
	return s.wrappedExporter.Shutdown(ctx)
}
