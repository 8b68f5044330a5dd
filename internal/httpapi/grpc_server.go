package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"contractdesk.org/internal/obs"
)

// GRPCServer serves the standard gRPC health protocol. Both the overall
// status ("") and the service name follow the readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness ReadinessChecker
	version   string
}

// NewGRPCServer creates the gRPC health wrapper. The status starts as NOT_SERVING
// until the first Refresh.
func NewGRPCServer(r ReadinessChecker, version string) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: h, readiness: r, version: version}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh evaluates readiness once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		obs.Logger().WarnContext(ctx, "readiness check failed", "error", err, "version", s.version)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	return status
}

// Run refreshes the status every interval until ctx is done, then marks the
// server as shutting down.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
