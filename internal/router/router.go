// Package router implements the per-listener routing policies: fixed
// forwarding, warmup fan-out, and shadowing.
package router

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"synchrotron/internal/backend"
	"synchrotron/internal/policy"
	"synchrotron/internal/resp"
)

// Router applies a routing policy to a batch of client requests and
// returns one reply per request, in the batch's original order.
type Router interface {
	Route(ctx context.Context, batch []resp.Message) []resp.Reply
}

// RoutedPool pairs a backend.Pool with the command policy governing it,
// so every Router variant applies blocking and local-command handling the
// same way before a message ever reaches the pool. Checker is optional: a
// nil Checker falls back to the static admin-command table only, with no
// custom deny patterns.
type RoutedPool struct {
	Pool               *backend.Pool
	BlockAdminCommands bool
	Checker            *policy.Checker
}

func (rp *RoutedPool) dispatch(ctx context.Context, msg resp.Message) resp.Reply {
	if msg.IsLocal() {
		return localReply(msg)
	}
	if rp.BlockAdminCommands {
		if rp.Checker != nil {
			if blocked, reason := rp.Checker.Check(msg.Command()); blocked {
				return resp.ErrorReply("ERR command %s blocked by proxy policy: %s", msg.Command(), reason)
			}
		} else if policy.IsBlocked(msg.Command()) {
			return resp.ErrorReply("ERR command %s blocked by proxy policy", msg.Command())
		}
	}
	return rp.Pool.Dispatch(ctx, msg)
}

func localReply(msg resp.Message) resp.Reply {
	switch msg.Command() {
	case "PING":
		if len(msg.Args) >= 2 {
			return resp.Reply{Kind: resp.KindBulkString, Bulk: msg.Args[1]}
		}
		return resp.Reply{Kind: resp.KindSimpleString, Str: "PONG"}
	case "ECHO":
		if len(msg.Args) >= 2 {
			return resp.Reply{Kind: resp.KindBulkString, Bulk: msg.Args[1]}
		}
		return resp.ErrorReply("ERR wrong number of arguments for 'echo' command")
	default:
		return resp.ErrorReply("ERR unknown command '%s'", msg.Command())
	}
}

// routeBatch dispatches every message in batch through dispatch
// concurrently, writing each reply to its original batch position.
func routeBatch(ctx context.Context, batch []resp.Message, dispatch func(context.Context, resp.Message) resp.Reply) []resp.Reply {
	replies := make([]resp.Reply, len(batch))
	var wg sync.WaitGroup
	for i, msg := range batch {
		wg.Add(1)
		go func(i int, msg resp.Message) {
			defer wg.Done()
			replies[i] = dispatch(ctx, msg)
		}(i, msg)
	}
	wg.Wait()
	return replies
}

// Fixed forwards every request to the default pool unchanged.
type Fixed struct {
	Default *RoutedPool
}

func (f *Fixed) Route(ctx context.Context, batch []resp.Message) []resp.Reply {
	return routeBatch(ctx, batch, f.Default.dispatch)
}

// Warmup forwards every request to the warm pool for the client-visible
// reply, and additionally fires every write request at the cold pool in
// the background — cold's replies are discarded, its errors only logged.
type Warmup struct {
	Warm   *RoutedPool
	Cold   *RoutedPool
	Logger *logrus.Logger
}

func (w *Warmup) Route(ctx context.Context, batch []resp.Message) []resp.Reply {
	for _, msg := range batch {
		if msg.IsWrite() {
			go w.shadowToCold(ctx, msg)
		}
	}
	return routeBatch(ctx, batch, w.Warm.dispatch)
}

func (w *Warmup) shadowToCold(ctx context.Context, msg resp.Message) {
	r := w.Cold.dispatch(ctx, msg)
	if r.Kind == resp.KindError {
		w.Logger.WithFields(logrus.Fields{
			"pool":    "cold",
			"command": msg.Command(),
			"error":   r.Str,
		}).Warn("warmup cold-pool write failed")
	}
}

// Shadow forwards every request to the default pool for the client-visible
// reply, and duplicates the whole batch to the shadow pool in the
// background — shadow's replies and errors never surface to the client.
type Shadow struct {
	Default *RoutedPool
	ShadowP *RoutedPool
	Logger  *logrus.Logger
}

func (s *Shadow) Route(ctx context.Context, batch []resp.Message) []resp.Reply {
	go s.mirror(ctx, batch)
	return routeBatch(ctx, batch, s.Default.dispatch)
}

func (s *Shadow) mirror(ctx context.Context, batch []resp.Message) {
	for _, msg := range batch {
		r := s.ShadowP.dispatch(ctx, msg)
		if r.Kind == resp.KindError {
			s.Logger.WithFields(logrus.Fields{
				"pool":    "shadow",
				"command": msg.Command(),
				"error":   r.Str,
			}).Warn("shadow pool request failed")
		}
	}
}
