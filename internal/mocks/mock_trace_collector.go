package mocks

import (
	"context"
	"net"
	"slices"
	"sync"

	otlpcollector "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
)

// MockTraceCollector is an OTLP/gRPC trace collector recording the names of
// the spans it receives. You must call Stop afterward.
type MockTraceCollector struct {
	otlpcollector.UnimplementedTraceServiceServer

	listener net.Listener
	server   *grpc.Server
	done     chan struct{}

	mu          sync.Mutex
	exportCount int
	spanNames   []string
}

var _ otlpcollector.TraceServiceServer = (*MockTraceCollector)(nil)

func (c *MockTraceCollector) Export(_ context.Context, req *otlpcollector.ExportTraceServiceRequest) (*otlpcollector.ExportTraceServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exportCount++
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				c.spanNames = append(c.spanNames, span.GetName())
			}
		}
	}
	return &otlpcollector.ExportTraceServiceResponse{}, nil
}

// NewMockTraceCollector listens on a free loopback port.
func NewMockTraceCollector() (*MockTraceCollector, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	c := &MockTraceCollector{
		listener: lis,
		server:   grpc.NewServer(),
		done:     make(chan struct{}),
	}
	otlpcollector.RegisterTraceServiceServer(c.server, c)

	go func() {
		defer close(c.done)
		_ = c.server.Serve(lis)
	}()
	return c, nil
}

// Addr is the host:port the collector listens on.
func (c *MockTraceCollector) Addr() string {
	return c.listener.Addr().String()
}

func (c *MockTraceCollector) Stop() {
	c.server.Stop()
	<-c.done
}

func (c *MockTraceCollector) GetExportCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exportCount
}

// SpanNames returns the names of the spans received, in arrival order.
func (c *MockTraceCollector) SpanNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.spanNames)
}
