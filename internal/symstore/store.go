// Package symstore implements symbolic storage: an unordered mapping from
// 256-bit storage slot key to an optional expression, mirroring the EVM's
// SSTORE/SLOAD semantics where a missing key denotes concrete zero.
package symstore

import (
	"sort"

	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// Store is keyed by the concrete 256-bit slot index (not a symbolic key:
// the EVM always resolves SLOAD/SSTORE's slot argument to a concrete word
// before indexing, even when the value stored there is symbolic).
type Store struct {
	slots map[uint256.Int]*expr.Expr
}

// New returns an empty symbolic storage map.
func New() *Store {
	return &Store{slots: make(map[uint256.Int]*expr.Expr)}
}

// SStore overwrites the value at key.
func (s *Store) SStore(key uint256.Int, value *expr.Expr) {
	s.slots[key] = value
}

// SLoad returns the mapped expression, or nil if key has never been
// written (concrete zero by convention).
func (s *Store) SLoad(key uint256.Int) *expr.Expr {
	return s.slots[key]
}

// Keys returns the set of written slot keys, sorted ascending, for
// deterministic debug dumps.
func (s *Store) Keys() []uint256.Int {
	keys := maps.Keys(s.slots)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Lt(&keys[j]) })
	return keys
}
