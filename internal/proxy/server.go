// Package proxy accepts client connections, reads pipelined batches of
// Redis requests off them, and routes each batch through the configured
// Router, writing replies back in order.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"synchrotron/internal/backend"
	"synchrotron/internal/config"
	"synchrotron/internal/metrics"
	"synchrotron/internal/policy"
	"synchrotron/internal/router"
)

// healthProbeInterval governs how often a cooling-off backend is pinged to
// check whether it can rejoin rotation.
const healthProbeInterval = time.Second

// listenerRuntime is one running listener: its accept loop, its Router, and
// the pools it owns (so Stop can close their backend connections).
type listenerRuntime struct {
	name     string
	ln       net.Listener
	rt       router.Router
	pools    []*backend.Pool
	probeCtl context.CancelFunc
	limiter  *rate.Limiter // nil when accept_rate_per_second is unset
}

// Server owns every listener described by a config.Config, plus the Warden
// coordinating graceful shutdown across all of them.
type Server struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Registry
	warden  *Warden

	mu        sync.Mutex
	listeners []*listenerRuntime
}

// NewServer builds a Server from cfg; it does not bind any sockets yet.
func NewServer(cfg *config.Config, logger *logrus.Logger, reg *metrics.Registry) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		warden:  NewWarden(),
	}
}

// Start binds every configured listener and begins accepting connections.
// It returns once every listener is bound; accepting happens in background
// goroutines.
func (s *Server) Start(ctx context.Context) error {
	for name, lc := range s.cfg.Listeners {
		lr, err := s.buildListener(ctx, name, lc)
		if err != nil {
			s.closeAll()
			return fmt.Errorf("listener %q: %w", name, err)
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, lr)
		s.mu.Unlock()

		go s.acceptLoop(ctx, lr)
	}
	return nil
}

func (s *Server) buildListener(ctx context.Context, name string, lc config.ListenerConfig) (*listenerRuntime, error) {
	pools := make(map[string]*backend.Pool, len(lc.Pools))
	for pname, pcfg := range lc.Pools {
		p, err := backend.NewPool(pname, pcfg, s.logger)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", pname, err)
		}
		pools[pname] = p
	}

	probeCtx, cancel := context.WithCancel(ctx)
	var allPools []*backend.Pool
	for _, p := range pools {
		allPools = append(allPools, p)
		for _, be := range p.Backends() {
			go be.RunHealthProbe(probeCtx, healthProbeInterval)
		}
	}
	if s.metrics != nil {
		go s.reportBackendMetrics(probeCtx, allPools)
	}

	rt, err := s.buildRouter(lc, pools)
	if err != nil {
		cancel()
		return nil, err
	}

	ln, err := listen(ctx, lc.Address)
	if err != nil {
		cancel()
		return nil, err
	}

	var limiter *rate.Limiter
	if lc.AcceptRatePerSecond > 0 {
		burst := int(lc.AcceptRatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(lc.AcceptRatePerSecond), burst)
	}

	return &listenerRuntime{name: name, ln: ln, rt: rt, pools: allPools, probeCtl: cancel, limiter: limiter}, nil
}

// reportBackendMetrics periodically samples every backend's cool-off state
// and in-flight count into the corresponding gauge vecs, until ctx is done.
func (s *Server) reportBackendMetrics(ctx context.Context, pools []*backend.Pool) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	sample := func() {
		for _, p := range pools {
			for _, be := range p.Backends() {
				coolingOff := 0.0
				if be.State() == backend.StateCoolingOff || be.State() == backend.StateProbing {
					coolingOff = 1
				}
				s.metrics.BackendCoolingOff.WithLabelValues(p.Name(), be.Addr()).Set(coolingOff)
				s.metrics.BackendInFlight.WithLabelValues(p.Name(), be.Addr()).Set(float64(be.InFlight()))
			}
		}
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (s *Server) buildRouter(lc config.ListenerConfig, pools map[string]*backend.Pool) (router.Router, error) {
	routed := func(name string) *router.RoutedPool {
		p := pools[name]
		block := true
		opts, ok := firstOptions(lc, name)
		if ok && opts.BlockAdminCommands != nil {
			block = *opts.BlockAdminCommands
		}

		var checker *policy.Checker
		if ok && len(opts.DenyPatterns) > 0 {
			checker = policy.NewChecker(s.logger)
			for _, pattern := range opts.DenyPatterns {
				if err := checker.AddPattern(pattern); err != nil {
					s.logger.WithFields(logrus.Fields{
						"pool":    name,
						"pattern": pattern,
						"error":   err,
					}).Warn("invalid deny_patterns entry, skipped")
				}
			}
		}

		return &router.RoutedPool{Pool: p, BlockAdminCommands: block, Checker: checker}
	}

	switch lc.Routing.Type {
	case "warmup":
		return &router.Warmup{Warm: routed("warm"), Cold: routed("cold"), Logger: s.logger}, nil
	case "shadow":
		return &router.Shadow{Default: routed("default"), ShadowP: routed("shadow"), Logger: s.logger}, nil
	default:
		return &router.Fixed{Default: routed("default")}, nil
	}
}

func firstOptions(lc config.ListenerConfig, poolName string) (config.PoolOptionsConfig, bool) {
	p, ok := lc.Pools[poolName]
	if !ok {
		return config.PoolOptionsConfig{}, false
	}
	return p.Options, true
}

func (s *Server) acceptLoop(ctx context.Context, lr *listenerRuntime) {
	for {
		conn, err := lr.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.WithFields(logrus.Fields{
				"listener": lr.name,
				"error":    err,
			}).Warn("accept failed")
			return
		}

		if lr.limiter != nil {
			if err := lr.limiter.Wait(ctx); err != nil {
				conn.Close()
				continue
			}
		}

		if !s.warden.Enter() {
			conn.Close()
			continue
		}
		if s.metrics != nil {
			s.metrics.ClientConnections.Inc()
		}

		go func() {
			defer s.warden.Leave()
			if s.metrics != nil {
				defer s.metrics.ClientConnections.Dec()
			}
			task := &clientTask{conn: conn, rt: lr.rt, logger: s.logger, metrics: s.metrics, pool: lr.name}
			task.run(ctx)
		}()
	}
}

// Stop closes every listener's socket (no new connections accepted), then
// waits up to drainTimeout for in-flight connections to finish naturally
// before closing backend pools out from under them.
func (s *Server) Stop(ctx context.Context, drainTimeout time.Duration) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, lr := range listeners {
		lr.ln.Close()
	}

	s.warden.Drain(ctx, drainTimeout)
	s.closeAll()
}

// Pools returns every listener's pools, keyed by listener name, so the
// admin service can report live backend state.
func (s *Server) Pools() map[string][]*backend.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]*backend.Pool, len(s.listeners))
	for _, lr := range s.listeners {
		out[lr.name] = lr.pools
	}
	return out
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lr := range s.listeners {
		lr.probeCtl()
		for _, p := range lr.pools {
			if err := p.Close(); err != nil {
				s.logger.WithError(err).Warn("error closing pool")
			}
		}
	}
	s.listeners = nil
}
