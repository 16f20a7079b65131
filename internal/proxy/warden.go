package proxy

import (
	"context"
	"sync"
	"time"
)

// Warden tracks in-flight client connections so shutdown can wait for a
// bounded drain window before the process exits, instead of cutting
// connections off mid-pipeline.
type Warden struct {
	mu      sync.Mutex
	active  int
	done    chan struct{}
	closing bool
}

// NewWarden builds an empty Warden.
func NewWarden() *Warden {
	return &Warden{done: make(chan struct{})}
}

// Enter registers one active connection. It returns false, doing nothing
// else, if the Warden is already draining — the caller should refuse the
// connection rather than register it.
func (w *Warden) Enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return false
	}
	w.active++
	return true
}

// Leave deregisters one active connection, signaling done if a drain is in
// progress and this was the last one.
func (w *Warden) Leave() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active--
	if w.closing && w.active <= 0 {
		select {
		case <-w.done:
		default:
			close(w.done)
		}
	}
}

// Drain marks the Warden closing (no further Enter calls succeed) and
// blocks until every active connection has Left, or timeout elapses.
func (w *Warden) Drain(ctx context.Context, timeout time.Duration) {
	w.mu.Lock()
	w.closing = true
	empty := w.active <= 0
	if empty {
		select {
		case <-w.done:
		default:
			close(w.done)
		}
	}
	w.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-w.done:
	case <-tctx.Done():
	}
}
