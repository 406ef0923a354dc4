// Package coverage implements the shared coverage byte map the fuzzer's
// concrete-execution-side instrumentation writes and the concolic host's
// JUMPI logic reads, plus the single index function both sides standardize
// on (resolving the source's pc⊕dest vs pc·dest ambiguity, see
// SPEC_FULL.md §4.3).
package coverage

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// MapSize is the fixed width of the coverage byte map.
const MapSize = 256

// indexKey is a fixed, non-secret SipHash key: the index function only
// needs good bit diffusion across (pc, destination) pairs, not resistance
// to an adversary, so a baked-in key is fine and keeps both
// instrumentation points deterministic without sharing any extra state.
const (
	indexKey0 uint64 = 0x636f6e636f6c6963 // "concolic"
	indexKey1 uint64 = 0x6a756d7069636f76 // "jumpicov"
)

// Map is a fixed-size byte array addressable by Index(pc, dest). A zero
// value denotes "this edge has never been taken". It is shared, unsynchronized
// state: callers are expected to run one fuzzer instance per process (see
// SPEC_FULL.md §5), not to share a Map across goroutines doing concurrent
// fuzzing.
type Map struct {
	bytes [MapSize]byte
}

// New returns a freshly zeroed coverage map.
func New() *Map {
	return &Map{}
}

// Index hashes (pc, dest) into a slot in [0, MapSize) using keyed
// SipHash-2-4 over their big-endian concatenation.
func Index(pc, dest uint64) int {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], pc)
	binary.BigEndian.PutUint64(buf[8:16], dest)
	h := siphash.Hash(indexKey0, indexKey1, buf[:])
	return int(h % MapSize)
}

// Visited reports whether the edge (pc, dest) has ever been observed.
func (m *Map) Visited(pc, dest uint64) bool {
	return m.bytes[Index(pc, dest)] != 0
}

// Mark records that edge (pc, dest) has now been observed. Called by the
// concrete-execution-side instrumentation; the concolic host only reads
// via Visited.
func (m *Map) Mark(pc, dest uint64) {
	m.bytes[Index(pc, dest)] = 1
}

// Bytes exposes the backing array for instrumentation that needs direct
// byte-level access (e.g. shared-memory coverage maps between fuzzer
// workers). Callers must not resize the returned slice.
func (m *Map) Bytes() []byte {
	return m.bytes[:]
}
