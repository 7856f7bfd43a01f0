// Package mocks provides an in-process OTLP trace collector for tests.
package mocks

import (
	"context"
	"net"
	"sync"
	"testing"

	otlpcollector "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
)

// MockCollector is an OTLP gRPC trace service that records the names of the spans it
// receives.
type MockCollector struct {
	otlpcollector.UnimplementedTraceServiceServer

	mu      sync.Mutex
	exports int
	spans   []string
}

func (c *MockCollector) Export(_ context.Context, req *otlpcollector.ExportTraceServiceRequest) (*otlpcollector.ExportTraceServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exports++
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				c.spans = append(c.spans, span.GetName())
			}
		}
	}
	return &otlpcollector.ExportTraceServiceResponse{}, nil
}

// NewMockCollector serves a MockCollector on a random loopback port until the test ends
// and returns it with its address.
func NewMockCollector(t testing.TB) (*MockCollector, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	collector := &MockCollector{}
	server := grpc.NewServer()
	otlpcollector.RegisterTraceServiceServer(server, collector)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(lis)
	}()
	t.Cleanup(func() {
		server.Stop()
		<-done
	})

	return collector, lis.Addr().String()
}

func (c *MockCollector) ExportCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exports
}

// SpanNames returns the names of every span received so far.
func (c *MockCollector) SpanNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.spans...)
}
