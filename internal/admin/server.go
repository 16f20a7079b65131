package admin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const serviceName = "synchrotron.AdminService"

// healthSyncInterval governs how often the gRPC health service's serving
// status is refreshed from Service.HealthCheck.
const healthSyncInterval = 2 * time.Second

// Server exposes Service's liveness over the standard gRPC health-checking
// protocol (plus reflection), so an operator's grpc-health-probe or grpcurl
// sees the same backend health Service.HealthCheck/the HTTP /healthz
// endpoint report.
// GetStats and Shutdown themselves are reached over the HTTP stats surface
// (cmd/synchrotron/main.go's /status handler and signal-driven shutdown),
// not as gRPC methods — the admin plane here is a health/control probe
// point, not a full RPC API.
type Server struct {
	addr         string
	service      *Service
	logger       *logrus.Logger
	grpcServer   *grpc.Server
	healthServer *health.Server
	listener     net.Listener

	mu      sync.Mutex
	running bool
	syncCtl context.CancelFunc
}

// NewServer builds an admin Server bound to addr.
func NewServer(addr string, service *Service, logger *logrus.Logger) *Server {
	return &Server{addr: addr, service: service, logger: logger}
}

// Start binds the listen socket and serves in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("admin server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  5 * time.Second,
			Timeout:               1 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	s.grpcServer = grpc.NewServer(opts...)

	s.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s.grpcServer)

	syncCtx, cancel := context.WithCancel(context.Background())
	s.syncCtl = cancel
	go s.syncHealthStatus(syncCtx)

	s.running = true
	s.mu.Unlock()

	s.logger.WithField("address", listener.Addr().String()).Info("admin server starting")

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.logger.WithError(err).Warn("admin server stopped serving")
		}
	}()
	return nil
}

// syncHealthStatus periodically refreshes the gRPC health service's serving
// status from the admin Service's own HealthCheck, so grpc_health_v1
// clients see the same backend availability the HTTP /healthz endpoint
// reports, instead of a status fixed at SERVING for the server's lifetime.
func (s *Server) syncHealthStatus(ctx context.Context) {
	ticker := time.NewTicker(healthSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy, err := s.service.HealthCheck(ctx)
			status := grpc_health_v1.HealthCheckResponse_SERVING
			if err != nil || !healthy {
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
			s.healthServer.SetServingStatus(serviceName, status)
		}
	}
}

// Stop gracefully stops the gRPC server, falling back to a hard stop if
// graceful shutdown doesn't finish within timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	s.healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if s.syncCtl != nil {
		s.syncCtl()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		s.logger.Warn("admin server graceful stop timed out, forcing")
		s.grpcServer.Stop()
	}

	s.running = false
}
