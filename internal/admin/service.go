// Package admin exposes a small control surface over the proxy: aggregate
// stats per pool/backend, a health check, and a graceful shutdown trigger.
// Only the health check is mirrored over gRPC (the standard health
// service); stats and shutdown are reached from the HTTP stats server and
// the process's signal handling.
package admin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"synchrotron/internal/backend"
)

// StatsSource supplies the pools a running proxy.Server is serving, keyed
// by listener name, so the admin service can report live backend state
// without importing the proxy package (which in turn depends on admin's
// sibling packages only at the cmd wiring layer).
type StatsSource interface {
	Pools() map[string][]*backend.Pool
}

// ShutdownFunc triggers the process's graceful shutdown sequence.
type ShutdownFunc func(ctx context.Context, graceful bool) error

// Service implements the admin control surface.
type Service struct {
	stats     StatsSource
	shutdown  ShutdownFunc
	logger    *logrus.Logger
	startTime time.Time
}

// NewService builds a Service reporting on stats and triggering shutdown
// via shutdown.
func NewService(stats StatsSource, shutdown ShutdownFunc, logger *logrus.Logger) *Service {
	return &Service{
		stats:     stats,
		shutdown:  shutdown,
		logger:    logger,
		startTime: time.Now(),
	}
}

// BackendStats is one backend's reported state.
type BackendStats struct {
	Address  string
	State    string
	InFlight int64
}

// PoolStats is one pool's reported state.
type PoolStats struct {
	Listener string
	Pool     string
	Backends []BackendStats
}

// GetStats returns a snapshot of every pool known to the proxy.
func (s *Service) GetStats(ctx context.Context) ([]PoolStats, error) {
	s.logger.Debug("admin GetStats called")

	var out []PoolStats
	for listener, pools := range s.stats.Pools() {
		for _, p := range pools {
			ps := PoolStats{Listener: listener, Pool: p.Name()}
			for _, be := range p.Backends() {
				ps.Backends = append(ps.Backends, BackendStats{
					Address:  be.Addr(),
					State:    be.State().String(),
					InFlight: be.InFlight(),
				})
			}
			out = append(out, ps)
		}
	}
	return out, nil
}

// Uptime reports how long the service has been running.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// HealthCheck reports whether the proxy considers itself healthy: a single
// available backend in any pool of any listener is enough to answer
// "serving".
func (s *Service) HealthCheck(ctx context.Context) (bool, error) {
	for _, pools := range s.stats.Pools() {
		for _, p := range pools {
			for _, be := range p.Backends() {
				if be.Available() {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// Shutdown triggers the process's graceful shutdown sequence.
func (s *Service) Shutdown(ctx context.Context, graceful bool) error {
	s.logger.WithField("graceful", graceful).Info("shutdown requested via admin service")
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown(ctx, graceful)
}
