package backend

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"synchrotron/internal/config"
	"synchrotron/internal/distribute"
	"synchrotron/internal/hash"
	"synchrotron/internal/resp"
)

// aggregateKind describes how a multi-key command's per-fragment replies
// recombine into the single reply the client expects.
type aggregateKind int

const (
	aggregateArray aggregateKind = iota // per-key replies, reassembled in original key order (MGET)
	aggregateSumInt                     // integer replies summed across fragments (DEL, EXISTS, UNLINK, TOUCH)
	aggregateOK                         // single OK once every fragment succeeds (MSET)
)

var aggregateForCommand = map[string]aggregateKind{
	"MGET": aggregateArray,
	"DEL": aggregateSumInt, "UNLINK": aggregateSumInt,
	"EXISTS": aggregateSumInt, "TOUCH": aggregateSumInt,
	"MSET": aggregateOK,
}

// Pool is one logical upstream: a set of Backends plus the Distributor
// deciding which backend a key belongs to. It fragments multi-key commands
// across the backends their keys belong to and reassembles the replies.
type Pool struct {
	name        string
	backends    []*Backend
	distributor distribute.Distributor
	noKeyPolicy string
	logger      *logrus.Logger
	limiter     *rate.Limiter // nil when options.query_rate_per_second is unset
}

// NewPool builds a Pool of Backends dialed from cfg's address list.
func NewPool(name string, cfg config.PoolConfig, logger *logrus.Logger) (*Pool, error) {
	h, err := hash.New(cfg.Options.Hash)
	if err != nil {
		return nil, err
	}
	d, err := distribute.New(cfg.Options.Distribution, h, cfg.Addresses)
	if err != nil {
		return nil, err
	}

	backends := make([]*Backend, len(cfg.Addresses))
	for i, addr := range cfg.Addresses {
		backends[i] = New(addr, cfg.Options, logger)
	}

	var limiter *rate.Limiter
	if cfg.Options.QueryRatePerSecond > 0 {
		burst := int(cfg.Options.QueryRatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Options.QueryRatePerSecond), burst)
	}

	return &Pool{
		name:        name,
		backends:    backends,
		distributor: d,
		noKeyPolicy: cfg.Options.NoKeyPolicy,
		logger:      logger,
		limiter:     limiter,
	}, nil
}

// Backends returns the pool's backend list, in address order — the same
// order the Distributor was seeded with.
func (p *Pool) Backends() []*Backend {
	return p.backends
}

// Name returns the pool's configured name (e.g. "default", "warm", "cold").
func (p *Pool) Name() string {
	return p.name
}

// Dispatch routes one message to the backend(s) its keys belong to,
// fragmenting and reassembling as needed, and returns the single reply the
// client should see.
func (p *Pool) Dispatch(ctx context.Context, msg resp.Message) resp.Reply {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return resp.ErrorReply("ERR query rate limit exceeded")
		}
	}

	keys := msg.RoutingKeys()

	if len(keys) == 0 {
		return p.dispatchNoKey(ctx, msg)
	}
	if len(keys) == 1 {
		idx := p.distributor.Choose(keys[0])
		return p.submitSingle(ctx, idx, msg)
	}
	return p.dispatchFragmented(ctx, msg, keys)
}

func (p *Pool) submitSingle(ctx context.Context, idx int, msg resp.Message) resp.Reply {
	be := p.backends[idx]
	if !be.Available() {
		return p.unavailableReply()
	}
	replies := be.Submit(ctx, []resp.Message{msg})
	return replies[0]
}

// unavailableReply reports NoBackendAvailable when every backend in the
// pool is unhealthy, or BackendUnavailable when only some are.
func (p *Pool) unavailableReply() resp.Reply {
	if p.allUnavailable() {
		return resp.NoBackendAvailable
	}
	return resp.BackendUnavailable
}

func (p *Pool) allUnavailable() bool {
	for _, be := range p.backends {
		if be.Available() {
			return false
		}
	}
	return true
}

func (p *Pool) dispatchNoKey(ctx context.Context, msg resp.Message) resp.Reply {
	switch p.noKeyPolicy {
	case "broadcast":
		return p.broadcast(ctx, msg)
	default: // first_backend
		return p.submitSingle(ctx, 0, msg)
	}
}

func (p *Pool) broadcast(ctx context.Context, msg resp.Message) resp.Reply {
	var wg sync.WaitGroup
	replies := make([]resp.Reply, len(p.backends))
	for i, be := range p.backends {
		if !be.Available() {
			replies[i] = p.unavailableReply()
			continue
		}
		wg.Add(1)
		go func(i int, be *Backend) {
			defer wg.Done()
			r := be.Submit(ctx, []resp.Message{msg})
			replies[i] = r[0]
		}(i, be)
	}
	wg.Wait()

	for i, r := range replies {
		if r.Kind == resp.KindError {
			p.logger.WithFields(logrus.Fields{
				"backend": p.backends[i].Addr(),
				"error":   r.Str,
			}).Warn("broadcast fragment failed")
		}
	}
	return replies[0]
}

// fragment is one backend's share of a multi-key command: the subset of
// keys it owns plus their position in the original command's key list.
type fragment struct {
	backendIdx int
	keyIdx     []int
	keys       [][]byte
}

// fragResult pairs a fragment with the reply its sub-command got back.
type fragResult struct {
	frag  *fragment
	reply resp.Reply
}

func (p *Pool) dispatchFragmented(ctx context.Context, msg resp.Message, keys [][]byte) resp.Reply {
	byBackend := make(map[int]*fragment)
	order := make([]int, 0, len(p.backends))
	for ki, key := range keys {
		idx := p.distributor.Choose(key)
		f, ok := byBackend[idx]
		if !ok {
			f = &fragment{backendIdx: idx}
			byBackend[idx] = f
			order = append(order, idx)
		}
		f.keyIdx = append(f.keyIdx, ki)
		f.keys = append(f.keys, key)
	}

	kind := aggregateForCommand[msg.Command()]
	cmd := msg.Command()

	results := make([]fragResult, len(order))
	var wg sync.WaitGroup
	for i, idx := range order {
		f := byBackend[idx]
		wg.Add(1)
		go func(i int, f *fragment) {
			defer wg.Done()
			results[i] = fragResult{frag: f, reply: p.submitFragment(ctx, f, cmd, msg)}
		}(i, f)
	}
	wg.Wait()

	return reassemble(kind, len(keys), results)
}

func (p *Pool) submitFragment(ctx context.Context, f *fragment, cmd string, msg resp.Message) resp.Reply {
	be := p.backends[f.backendIdx]
	if !be.Available() {
		return p.unavailableReply()
	}

	sub := buildFragmentMessage(cmd, msg, f)
	replies := be.Submit(ctx, []resp.Message{sub})
	return replies[0]
}

// buildFragmentMessage rebuilds a per-backend sub-command carrying only the
// keys (and, for MSET, values) that belong to this fragment.
func buildFragmentMessage(cmd string, original resp.Message, f *fragment) resp.Message {
	args := make([][]byte, 0, len(f.keys)*2+1)
	args = append(args, original.Args[0])

	if commandSchemaIsEveryOther(cmd) {
		for _, ki := range f.keyIdx {
			valueArgPos := 1 + ki*2 + 1
			args = append(args, original.Args[1+ki*2], original.Args[valueArgPos])
		}
	} else {
		args = append(args, f.keys...)
	}
	return resp.Message{Args: args}
}

func commandSchemaIsEveryOther(cmd string) bool {
	return cmd == "MSET" || cmd == "MSETNX"
}

func reassemble(kind aggregateKind, total int, results []fragResult) resp.Reply {
	switch kind {
	case aggregateSumInt:
		var sum int64
		for _, r := range results {
			if r.reply.Kind == resp.KindError {
				return r.reply
			}
			sum += r.reply.Int
		}
		return resp.Reply{Kind: resp.KindInteger, Int: sum}
	case aggregateOK:
		for _, r := range results {
			if r.reply.Kind == resp.KindError {
				return r.reply
			}
		}
		return resp.OK
	default: // aggregateArray
		out := make([]resp.Reply, total)
		for _, r := range results {
			for i, ki := range r.frag.keyIdx {
				if r.reply.Kind == resp.KindArray && i < len(r.reply.Array) {
					out[ki] = r.reply.Array[i]
				} else if r.reply.Kind == resp.KindError {
					out[ki] = r.reply
				}
			}
		}
		return resp.Reply{Kind: resp.KindArray, Array: out}
	}
}

// Close releases every backend's connection pool.
func (p *Pool) Close() error {
	var first error
	for _, be := range p.backends {
		if err := be.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
