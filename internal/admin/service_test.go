package admin

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"synchrotron/internal/backend"
	"synchrotron/internal/config"
	"synchrotron/internal/logging"
)

type fakeStats struct {
	pools map[string][]*backend.Pool
}

func (f *fakeStats) Pools() map[string][]*backend.Pool { return f.pools }

func newTestPool(t *testing.T) *backend.Pool {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.PoolConfig{
		Addresses: []string{mr.Addr()},
		Options: config.PoolOptionsConfig{
			Distribution:          "modulo",
			Hash:                  "md5",
			ConnectionsPerBackend: 1,
			TimeoutMs:             200,
			NoKeyPolicy:           "first_backend",
			FailureThreshold:      3,
			FailureWindowMs:       1000,
			CooloffTimeoutMs:      1000,
		},
	}
	p, err := backend.NewPool("default", cfg, logging.Nop())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestServiceGetStats(t *testing.T) {
	p := newTestPool(t)
	defer p.Close()

	stats := &fakeStats{pools: map[string][]*backend.Pool{"main": {p}}}
	svc := NewService(stats, nil, logging.Nop())

	out, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if len(out) != 1 || out[0].Listener != "main" || out[0].Pool != "default" {
		t.Fatalf("unexpected stats: %+v", out)
	}
	if len(out[0].Backends) != 1 || out[0].Backends[0].State != "healthy" {
		t.Fatalf("unexpected backend stats: %+v", out[0].Backends)
	}
}

func TestServiceHealthCheck(t *testing.T) {
	p := newTestPool(t)
	defer p.Close()

	stats := &fakeStats{pools: map[string][]*backend.Pool{"main": {p}}}
	svc := NewService(stats, nil, logging.Nop())

	healthy, err := svc.HealthCheck(context.Background())
	if err != nil || !healthy {
		t.Fatalf("HealthCheck() = (%v, %v), want (true, nil)", healthy, err)
	}
}

func TestServiceShutdownInvokesCallback(t *testing.T) {
	stats := &fakeStats{pools: map[string][]*backend.Pool{}}
	called := false
	svc := NewService(stats, func(ctx context.Context, graceful bool) error {
		called = true
		return nil
	}, logging.Nop())

	if err := svc.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !called {
		t.Fatalf("shutdown callback was not invoked")
	}
}
