// Package health serves the standard gRPC health protocol next to the HTTP API.
package health

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"school-chat/internal/observability"
)

// ServiceName is the health key reported for the chat core.
const ServiceName = "school_chat.Chat"

// Check reports an error when a dependency is unavailable.
type Check func(ctx context.Context) error

type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	checks   []Check
	interval time.Duration
	logger   *zap.Logger
}

func NewServer(logger *zap.Logger, interval time.Duration, checks ...Check) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, checks: checks, interval: interval, logger: logger}
}

// Refresh runs every check once and publishes the combined status.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, p := range s.checks {
		if err := p(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-t.C:
				s.Refresh(ctx)
			}
		}
	}()
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
