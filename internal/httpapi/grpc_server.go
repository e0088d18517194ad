package httpapi

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"notathome.app/internal/obs"
)

const serviceName = "notathome-api"

// GRPCServer exposes the standard gRPC health service so orchestrators can
// probe readiness without HTTP.
type GRPCServer struct {
	readiness readinessChecker
	health    *health.Server
	server    *grpc.Server
}

// NewGRPCServer wires the health service around the readiness probe.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	s := &GRPCServer{
		readiness: r,
		health:    health.NewServer(),
		server:    grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.Refresh(context.Background())
	return s
}

// Refresh re-evaluates readiness and publishes the result to health
// watchers. The caller drives the cadence; see cmd/api.
func (s *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.SetReady(false)
	} else {
		obs.SetReady(true)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
}

// Serve blocks serving gRPC on lis until Stop is called.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks the service NOT_SERVING and drains in-flight RPCs.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
