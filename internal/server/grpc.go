package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	healthgrpc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// GRPC serves the standard gRPC health protocol. Each monitored program
// is exposed as the service "program/<id>", so orchestration probes can
// watch a single program without parsing the dashboard.
type GRPC struct {
	port   int
	server *grpc.Server
	health *healthgrpc.Server
	log    *slog.Logger
}

// NewGRPC creates the gRPC health server on the given port.
func NewGRPC(port int) *GRPC {
	srv := grpc.NewServer()
	h := healthgrpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	return &GRPC{
		port:   port,
		server: srv,
		health: h,
		log:    slog.Default().With("component", "grpc"),
	}
}

// Publish updates per-program serving status from a fresh dashboard.
// Wire it as a poller cycle hook.
func (g *GRPC) Publish(dash domain.Dashboard) {
	for id, snap := range dash.Programs {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if snap.Health.Serving() {
			status = healthpb.HealthCheckResponse_SERVING
		}
		g.health.SetServingStatus(fmt.Sprintf("program/%s", id), status)
	}
}

// Start starts serving. It blocks until Stop is called.
func (g *GRPC) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	g.log.Info("gRPC health server listening", "port", g.port)
	return g.server.Serve(lis)
}

// Stop drains in-flight RPCs and stops the server.
func (g *GRPC) Stop() {
	g.server.GracefulStop()
}
