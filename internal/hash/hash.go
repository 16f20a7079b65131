// Package hash turns a routing key into a uint64 point that a Distributor
// then maps to a backend slot.
package hash

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a routing key to a point on the uint64 ring. Implementations
// must be pure functions of their input: the same key always yields the
// same point, for any process, any time — routing stability depends on it.
type Hasher interface {
	Hash(key []byte) uint64
}

// New builds the Hasher named by kind ("md5" or "xxhash", per the
// pool.options.hash config key).
func New(kind string) (Hasher, error) {
	switch kind {
	case "md5", "":
		return MD5{}, nil
	case "xxhash":
		return XXHash{}, nil
	default:
		return nil, fmt.Errorf("hash: unknown kind %q", kind)
	}
}

// MD5 takes the first 8 bytes of the key's MD5 digest as a big-endian
// uint64.
type MD5 struct{}

func (MD5) Hash(key []byte) uint64 {
	sum := md5.Sum(key)
	return binary.BigEndian.Uint64(sum[:8])
}

// XXHash is a faster alternative hash kind, enriching the two variants
// named by the source with the hash the rest of the example pack reaches
// for when cryptographic strength isn't needed.
type XXHash struct{}

func (XXHash) Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}
