package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPC serves the standard health service; its status tracks the database.
type GRPC struct {
	Server   *grpc.Server
	Health   *health.Server
	DB       Pinger
	Interval time.Duration
	logger   *slog.Logger
}

func NewGRPC(db Pinger, interval time.Duration, logger *slog.Logger) *GRPC {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	// Reflection for grpcurl
	reflection.Register(s)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPC{Server: s, Health: hs, DB: db, Interval: interval, logger: logger}
}

// Check pings the database once and publishes the result.
func (g *GRPC) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.DB.HealthCheck(ctx, g.Interval/2); err != nil {
		g.logger.Warn("database unhealthy", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.Health.SetServingStatus("", status)
	return status
}

// Monitor re-checks the database every Interval until ctx is done.
func (g *GRPC) Monitor(ctx context.Context) {
	g.Check(ctx)
	t := time.NewTicker(g.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Check(ctx)
		}
	}
}

// Serve listens on addr and blocks until the server stops.
func (g *GRPC) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g.logger.Info("gRPC serving", "addr", addr)
	return g.Server.Serve(lis)
}

// Stop marks the service as not serving and drains in-flight RPCs.
func (g *GRPC) Stop() {
	g.Health.Shutdown()
	g.Server.GracefulStop()
}
