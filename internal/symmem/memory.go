// Package symmem implements byte-addressable symbolic memory: a sparse
// vector of optional byte-level expressions backing the EVM's linear
// memory, with 256-bit aligned read/write semantics layered over it.
package symmem

import (
	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// Memory is a sparse vector indexed by byte address. A slot is either nil
// (the byte is concrete-zero by convention until explicitly written) or an
// Expr evaluating to exactly one byte.
//
// Mirrors the teacher's callEngine value stack in spirit (a flat backing
// slice grown on demand, no bounds checks on the hot path since the host
// is responsible for not reading offsets the concrete interpreter itself
// would not have reached) but is addressed like RAM rather than a stack.
type Memory struct {
	slots []*expr.Expr
}

// New returns an empty symbolic memory.
func New() *Memory {
	return &Memory{}
}

func (m *Memory) ensure(upto uint64) {
	if upto <= uint64(len(m.slots)) {
		return
	}
	grown := make([]*expr.Expr, upto)
	copy(grown, m.slots)
	m.slots = grown
}

// Insert256 writes a 32-byte value at addr: slot p+i is populated with
// Select(256-8i-1, 256-8i-8)(value) for byte i in [0,32).
func (m *Memory) Insert256(addr uint64, value *expr.Expr) {
	m.ensure(addr + 32)
	for i := 0; i < 32; i++ {
		high := 256 - 8*i - 1
		low := 256 - 8*i - 8
		m.slots[addr+uint64(i)] = expr.Select(high, low, value)
	}
}

// Insert8 implements MSTORE8: it stores only the low byte of value, using
// a Select(7,0) view rather than truncating the expression any other way.
// (Resolves the source's unimplemented insert_8: "write Select(7,0) of the
// stored expression into one slot".)
func (m *Memory) Insert8(addr uint64, value *expr.Expr) {
	m.ensure(addr + 1)
	m.slots[addr] = expr.Select(7, 0, value)
}

// Get256 concatenates 32 consecutive slots starting at addr, substituting
// ConstByte(0) for absent slots, and returns the simplified result.
func (m *Memory) Get256(addr uint64) *expr.Expr {
	bytes := m.GetSlice(addr, 32)
	return expr.Simplify(concatBytes(bytes))
}

// GetSlice returns length per-byte expressions starting at addr, in order,
// zero-extending past the end of the backing vector. Suitable for forming
// a callee's calldata via (argOffset, argLen).
func (m *Memory) GetSlice(addr uint64, length uint64) []*expr.Expr {
	out := make([]*expr.Expr, length)
	for i := uint64(0); i < length; i++ {
		idx := addr + i
		if idx < uint64(len(m.slots)) && m.slots[idx] != nil {
			out[i] = m.slots[idx]
		} else {
			out[i] = expr.ConstByteNode(0)
		}
	}
	return out
}

// concatBytes builds a right-nested Concat chain, Concat(b0, Concat(b1,
// ...)), most significant byte first, matching the data model's big-endian
// convention.
func concatBytes(bytes []*expr.Expr) *expr.Expr {
	if len(bytes) == 0 {
		return expr.ConstByteNode(0)
	}
	result := bytes[len(bytes)-1]
	for i := len(bytes) - 2; i >= 0; i-- {
		result = expr.Concat(bytes[i], result)
	}
	return result
}

// Len reports the current size of the backing vector, for diagnostics.
func (m *Memory) Len() uint64 { return uint64(len(m.slots)) }
