package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/gpio-monitor/internal/logger"
)

// OverallService is the health service name aggregating every property.
const OverallService = ""

// Server mirrors property values into a gRPC health server.
type Server struct {
	// health is the standard health service implementation.
	health *health.Server

	// mu protects values.
	mu sync.Mutex
	// values holds every known property; nil means declared but not published yet.
	values map[string]*bool
}

// NewServer creates a health mirror. Declared properties answer SERVICE_UNKNOWN
// until their first value and hold the overall service NOT_SERVING until then.
func NewServer(declared ...string) *Server {
	s := &Server{
		health: health.NewServer(),
		values: make(map[string]*bool, len(declared)),
	}

	for _, name := range declared {
		s.values[name] = nil
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
	}

	s.health.SetServingStatus(OverallService, healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// SetProperty implements property.Sink. The overall service is SERVING only
// when every known property has been published as true.
func (s *Server) SetProperty(_ context.Context, name string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[name] = &value
	s.health.SetServingStatus(name, servingStatus(value))

	overall := true
	for _, v := range s.values {
		overall = overall && v != nil && *v
	}

	s.health.SetServingStatus(OverallService, servingStatus(overall))

	return nil
}

// Health returns the underlying health service.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Run serves the health service on address until ctx is canceled.
func (s *Server) Run(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)

	logger.InfoKV(ctx, "Status server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Status server stopped")

	return nil
}

// servingStatus maps a property value onto a health status.
func servingStatus(good bool) healthpb.HealthCheckResponse_ServingStatus {
	if good {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}
