// Package backend manages the proxy's connections to Redis backend
// processes: per-backend health tracking via a cool-off state machine,
// and pool-level key routing and multi-key fragmentation.
package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"synchrotron/internal/config"
	"synchrotron/internal/resp"
)

// State is a backend's position in the cool-off state machine.
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateCoolingOff
	StateProbing
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateCoolingOff:
		return "cooling_off"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// Backend is one real Redis process behind the proxy. A *redis.Client owns
// its own internal connection pool (PoolSize == connections_per_backend);
// Backend layers health tracking on top so the router can skip it while
// it's cooling off.
type Backend struct {
	addr    string
	client  *redis.Client
	logger  *logrus.Logger
	timeout time.Duration

	cooloffTimeout   time.Duration
	failureThreshold int
	failureWindow    time.Duration

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	windowStart          time.Time
	coolingOffUntil      time.Time

	inFlight int64
}

// New builds a Backend for addr using opts to size its connection pool and
// health thresholds.
func New(addr string, opts config.PoolOptionsConfig, logger *logrus.Logger) *Backend {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     opts.ConnectionsPerBackend,
		DialTimeout:  opts.Timeout(),
		ReadTimeout:  opts.Timeout(),
		WriteTimeout: opts.Timeout(),
	})
	return &Backend{
		addr:             addr,
		client:           client,
		logger:           logger,
		timeout:          opts.Timeout(),
		cooloffTimeout:   opts.CooloffTimeout(),
		failureThreshold: opts.FailureThreshold,
		failureWindow:    opts.FailureWindow(),
		state:            StateHealthy,
	}
}

// Addr returns the backend's dial address.
func (b *Backend) Addr() string { return b.addr }

// State reports the backend's current health state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// InFlight reports the number of requests currently submitted to this
// backend and not yet replied to.
func (b *Backend) InFlight() int64 {
	return atomic.LoadInt64(&b.inFlight)
}

// Available reports whether client traffic may be routed to this backend.
// A backend cooling off or mid-probe is unavailable to client traffic; only
// the background health prober touches it in those states.
func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateHealthy || b.state == StateDegraded
}

// Submit runs msgs as one backend pipeline and returns one reply per
// message, in msgs order. It never returns a Go error: per-command
// failures, and a failure to execute the pipeline at all (e.g. the context
// expiring first), surface as RESP error replies in the affected slots.
func (b *Backend) Submit(ctx context.Context, msgs []resp.Message) []resp.Reply {
	atomic.AddInt64(&b.inFlight, 1)
	defer atomic.AddInt64(&b.inFlight, -1)

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	pipe := b.client.Pipeline()
	cmds := make([]redis.Cmder, len(msgs))
	for i, m := range msgs {
		cmds[i] = buildCmd(cctx, pipe, m)
	}

	_, err := pipe.Exec(cctx)
	if err != nil && err != redis.Nil {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}

	replies := make([]resp.Reply, len(cmds))
	for i, c := range cmds {
		replies[i] = resp.FromCmd(c)
	}
	return replies
}

// argsOf converts a Message's byte arguments into the interface{} slice
// go-redis's generic Do expects.
func argsOf(m resp.Message) []interface{} {
	args := make([]interface{}, len(m.Args))
	for i, a := range m.Args {
		args[i] = a
	}
	return args
}

func (b *Backend) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.consecutiveFailures == 0 || now.Sub(b.windowStart) > b.failureWindow {
		b.windowStart = now
		b.consecutiveFailures = 0
	}
	b.consecutiveFailures++

	if b.state == StateProbing {
		// The probe itself failed: stay (or return to) cooling off.
		b.state = StateCoolingOff
		b.coolingOffUntil = now.Add(b.cooloffTimeout)
		return
	}

	if b.consecutiveFailures >= b.failureThreshold {
		if b.state != StateCoolingOff {
			b.logger.WithFields(logrus.Fields{
				"backend":  b.addr,
				"failures": b.consecutiveFailures,
			}).Warn("backend entering cool-off")
		}
		b.state = StateCoolingOff
		b.coolingOffUntil = now.Add(b.cooloffTimeout)
		return
	}

	b.state = StateDegraded
}

func (b *Backend) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasCoolingOff := b.state == StateCoolingOff || b.state == StateProbing
	b.consecutiveFailures = 0
	b.state = StateHealthy

	if wasCoolingOff {
		b.logger.WithField("backend", b.addr).Info("backend recovered")
	}
}

// RunHealthProbe periodically PINGs the backend while it's cooling off and
// flips it back to healthy on a successful reply, independent of whether
// any client traffic is flowing. It returns when ctx is done.
func (b *Backend) RunHealthProbe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tryProbe(ctx)
		}
	}
}

func (b *Backend) tryProbe(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateCoolingOff || time.Now().Before(b.coolingOffUntil) {
		b.mu.Unlock()
		return
	}
	b.state = StateProbing
	b.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.client.Ping(cctx).Err(); err != nil {
		b.recordFailure()
		return
	}
	b.recordSuccess()
}

// Close releases the backend's underlying connection pool.
func (b *Backend) Close() error {
	return b.client.Close()
}
