// Package distribute maps a routing key to an index into a pool's backend
// list.
package distribute

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"synchrotron/internal/hash"
)

// Distributor picks which backend slot a key should land on. Its backend
// set is fixed at construction by New, from the pool's backend address
// list in address order. Choose must be safe for concurrent use — many
// client goroutines share one Distributor per pool.
type Distributor interface {
	Choose(key []byte) int
}

// New builds the Distributor named by kind ("random", "modulo", or
// "rendezvous", per the pool.options.distribution config key). hasher is
// used by the kinds that need a key->point mapping (modulo); rendezvous
// hashes keys and node names itself via xxhash, and random ignores the key
// entirely.
func New(kind string, hasher hash.Hasher, backends []string) (Distributor, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("distribute: at least one backend is required")
	}
	switch kind {
	case "modulo", "":
		return &Modulo{hasher: hasher, n: len(backends)}, nil
	case "random":
		return &Random{n: len(backends), rng: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
	case "rendezvous":
		return newRendezvous(backends), nil
	default:
		return nil, fmt.Errorf("distribute: unknown kind %q", kind)
	}
}

// Modulo assigns key = hasher.Hash(key) % n. Stable for a fixed backend
// count; like any modulo scheme, shrinking or growing the backend list
// reshuffles most keys, which is acceptable since pools are statically
// sized for this proxy.
type Modulo struct {
	hasher hash.Hasher
	n      int
}

func (m *Modulo) Choose(key []byte) int {
	return int(m.hasher.Hash(key) % uint64(m.n))
}

// Random ignores the key and picks a backend uniformly at random on every
// call — useful for no_key_policy=broadcast fan-in-less load spreading and
// for pools that intentionally don't care about key locality.
type Random struct {
	n   int
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *Random) Choose(_ []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(r.n)
}

// Rendezvous wraps dgryski/go-rendezvous (highest-random-weight hashing):
// each key is assigned to the node that scores highest under a combined
// key/node hash, so adding or removing one backend only reshuffles the
// keys that belonged to that backend. Enrichment beyond the two
// distribution kinds the source names outright.
type Rendezvous struct {
	r       *rendezvous.Rendezvous
	addrIdx map[string]int
}

func newRendezvous(backends []string) *Rendezvous {
	idx := make(map[string]int, len(backends))
	for i, addr := range backends {
		idx[addr] = i
	}
	return &Rendezvous{
		r:       rendezvous.New(backends, xxhash.Sum64String),
		addrIdx: idx,
	}
}

func (rv *Rendezvous) Choose(key []byte) int {
	addr := rv.r.Lookup(string(key))
	return rv.addrIdx[addr]
}
