// Package telemetry wires OpenTelemetry tracing for the scenematch binary.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/proxima-xr/scenematch/internal/build"
)

type TracerOption func(d *customTracer)

func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(d *customTracer) {
		d.endpoint = endpoint
	}
}

// WithOTLPInsecure disables TLS towards the collector.
func WithOTLPInsecure() TracerOption {
	return func(d *customTracer) {
		d.insecure = true
	}
}

func WithAttributes(attributes ...attribute.KeyValue) TracerOption {
	return func(d *customTracer) {
		d.attributes = append(d.attributes, attributes...)
	}
}

func WithSamplingRatio(samplingRatio float64) TracerOption {
	return func(d *customTracer) {
		d.samplingRatio = samplingRatio
	}
}

// WithSlowTickThreshold only exports the traces of ticks that took at least threshold.
// Zero exports every sampled trace.
func WithSlowTickThreshold(threshold time.Duration) TracerOption {
	return func(d *customTracer) {
		d.slowTickThreshold = threshold
	}
}

// WithExporter replaces the OTLP exporter, mostly for tests.
func WithExporter(exporter sdktrace.SpanExporter) TracerOption {
	return func(d *customTracer) {
		d.exporter = exporter
	}
}

type customTracer struct {
	endpoint   string
	insecure   bool
	attributes []attribute.KeyValue

	samplingRatio     float64
	slowTickThreshold time.Duration

	exporter sdktrace.SpanExporter
}

// MustNewTracerProvider builds a tracer provider exporting to an OTLP gRPC collector and
// installs it as the global otel provider. It panics when the exporter cannot be
// created.
func MustNewTracerProvider(opts ...TracerOption) TracerProvider {
	tracer := &customTracer{
		attributes: []attribute.KeyValue{
			semconv.ServiceNameKey.String(build.ProjectName),
			semconv.ServiceVersionKey.String(build.Version),
		},
	}

	for _, opt := range opts {
		opt(tracer)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(tracer.attributes...))
	if err != nil {
		panic(err)
	}

	exp := tracer.exporter
	if exp == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		options := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(tracer.endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(build.ProjectName + "/" + build.Version)),
		}
		if tracer.insecure {
			options = append(options, otlptracegrpc.WithInsecure())
		}

		exp, err = otlptracegrpc.New(ctx, options...)
		if err != nil {
			panic(fmt.Sprintf("failed to establish a connection with the otlp exporter: %v", err))
		}
	}

	if tracer.slowTickThreshold > 0 {
		exp = NewSlowTickSpanExporter(exp, WithThreshold(tracer.slowTickThreshold))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tracer.samplingRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	otel.SetTracerProvider(tp)

	return &tracerProvider{tp: tp}
}

func TraceError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
