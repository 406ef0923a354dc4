package concolic_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Cache-and-Burn/ityfuzz/internal/concolic"
	"github.com/Cache-and-Burn/ityfuzz/internal/coverage"
	"github.com/Cache-and-Burn/ityfuzz/internal/evmtrace"
	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
	"github.com/Cache-and-Burn/ityfuzz/internal/solve"
)

// stubSolver records every query it receives and returns a canned result,
// so tests can assert on what the host asked the solver to prove without
// needing a real z3 binary on PATH.
type stubSolver struct {
	calls  [][]*expr.Expr
	result *solve.Solution
}

func (s *stubSolver) Solve(_ context.Context, _ []*expr.Expr, constraints []*expr.Expr) (*solve.Solution, error) {
	cp := append([]*expr.Expr(nil), constraints...)
	s.calls = append(s.calls, cp)
	return s.result, nil
}

func u64(v uint64) uint256.Int { return *uint256.NewInt(v) }

// Scenario 1: single-byte branch flip.
func TestSingleByteBranchFlip(t *testing.T) {
	ctx := context.Background()
	input := []*expr.Expr{expr.SymByteNode("input0")}
	solver := &stubSolver{result: &solve.Solution{Input: []byte{0x42}}}
	host := concolic.New("case-1", input, coverage.New(), solver)
	r := evmtrace.NewRunner(host)

	r.Step(ctx, evmtrace.Push1(0, 100)) // dest
	r.Step(ctx, evmtrace.Push1(2, 0))   // calldataload offset
	r.Step(ctx, evmtrace.Instruction{PC: 4, Op: vm.CALLDATALOAD, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Push(u64(0)) // calldata is all-zero
	}})
	r.Step(ctx, evmtrace.Push1(5, 0x42))
	r.Step(ctx, evmtrace.Instruction{PC: 7, Op: vm.EQ, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(0)) // 0 != 0x42
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 8, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})

	require.Len(t, solver.calls, 1)
	require.Equal(t, "Eq(0x42, input[0:32])", solver.calls[0][0].String())
	require.Len(t, host.Constraints, 1)
	require.Equal(t, "LNot(Eq(0x42, input[0:32]))", host.Constraints[0].String())
	require.Len(t, host.Solutions, 1)
	require.Equal(t, byte(0x42), host.Solutions[0].Input[0])
}

// Scenario 2: comparison on call value.
func TestCallValueComparison(t *testing.T) {
	ctx := context.Background()
	solver := &stubSolver{result: &solve.Solution{Value: uint256.NewInt(1001), Fields: []solve.Field{solve.FieldCallValue}}}
	host := concolic.New("case-2", nil, coverage.New(), solver)
	r := evmtrace.NewRunner(host)

	r.Step(ctx, evmtrace.Push1(0, 100)) // dest
	r.Step(ctx, evmtrace.Push1(2, 1000))
	r.Step(ctx, evmtrace.Instruction{PC: 4, Op: vm.CALLVALUE, Apply: func(s *evmtrace.Stack) {
		s.Push(u64(0)) // driven with value = 0
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 5, Op: vm.GT, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(0)) // 0 is not > 1000
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 6, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})

	require.Len(t, solver.calls, 1)
	require.Equal(t, "Gt(CALLVALUE, 0x3e8)", solver.calls[0][0].String())
	require.Len(t, host.Solutions, 1)
	require.Contains(t, host.Solutions[0].Fields, solve.FieldCallValue)
}

// Scenario 3: a nested call concretises CALLER, so no constraint is ever
// recorded against it.
func TestNestedCallOpacifiesCaller(t *testing.T) {
	ctx := context.Background()
	solver := &stubSolver{}
	host := concolic.New("case-3", nil, coverage.New(), solver)
	r := evmtrace.NewRunner(host)

	// Push the 7 CALL args in real bytecode order: retSize, retOffset,
	// inSize, inOffset, value, addr, gas -- leaving gas on top, matching
	// go-ethereum's own opCall pop order (gas popped first).
	r.Step(ctx, evmtrace.Push1(0, 0))  // retSize
	r.Step(ctx, evmtrace.Push1(2, 0))  // retOffset
	r.Step(ctx, evmtrace.Push1(4, 0))  // inSize
	r.Step(ctx, evmtrace.Push1(6, 0))  // inOffset
	r.Step(ctx, evmtrace.Push1(8, 0))  // value
	r.Step(ctx, evmtrace.Push1(10, 0xB)) // addr
	r.Step(ctx, evmtrace.Push1(12, 1))   // gas
	r.Step(ctx, evmtrace.Instruction{PC: 14, Op: vm.CALL, Apply: func(s *evmtrace.Stack) {
		for i := 0; i < 7; i++ {
			s.Pop()
		}
		s.Push(u64(1)) // call success flag
	}})

	require.Equal(t, 1, host.Ctxs.Depth())
	require.Equal(t, 0, len(host.Stack)) // fresh empty frame for the callee

	r.Step(ctx, evmtrace.Push1(15, 200)) // dest, inside the nested frame
	r.Step(ctx, evmtrace.Instruction{PC: 17, Op: vm.CALLER, Apply: func(s *evmtrace.Stack) {
		s.Push(u64(0xAA)) // callee's concrete CALLER
	}})
	r.Step(ctx, evmtrace.Push1(18, 0xAA))
	r.Step(ctx, evmtrace.Instruction{PC: 20, Op: vm.EQ, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(1))
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 21, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})

	require.Empty(t, host.Constraints)
	require.Empty(t, solver.calls)

	r.Return()
	require.Equal(t, 0, host.Ctxs.Depth())
	require.Len(t, host.Stack, 1) // the caller's stack, with CALL's pushed result
}

// Scenario 4: memory round-trip.
func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	solver := &stubSolver{result: &solve.Solution{Input: make([]byte, 36)}}
	input := make([]*expr.Expr, 36)
	for i := range input {
		input[i] = expr.SymByteNode(byteLabel(i))
	}
	host := concolic.New("case-4", input, coverage.New(), solver)
	r := evmtrace.NewRunner(host)

	r.Step(ctx, evmtrace.Push1(0, 100)) // dest for the later JUMPI
	r.Step(ctx, evmtrace.Push1(2, 4))   // calldataload offset
	r.Step(ctx, evmtrace.Instruction{PC: 4, Op: vm.CALLDATALOAD, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Push(u64(0))
	}})
	r.Step(ctx, evmtrace.Push1(5, 0x40)) // mstore offset, pushed on top
	r.Step(ctx, evmtrace.Instruction{PC: 7, Op: vm.MSTORE, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})
	r.Step(ctx, evmtrace.Push1(8, 0x40)) // mload offset
	r.Step(ctx, evmtrace.Instruction{PC: 10, Op: vm.MLOAD, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Push(u64(0))
	}})
	r.Step(ctx, evmtrace.Push1(11, 0xDEADBEEF))
	r.Step(ctx, evmtrace.Instruction{PC: 13, Op: vm.EQ, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(0))
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 14, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})

	require.Len(t, solver.calls, 1)
	// The solved-for constraint compares the reloaded 256-bit word (built
	// from the 32 Select views written by MSTORE, which round-trip back to
	// the original CALLDATALOAD(4) value) against 0xDEADBEEF.
	require.Contains(t, solver.calls[0][0].String(), "input[4:36]")
}

func byteLabel(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "b" + string(digits[i])
	}
	return "b" + string(digits[i/10]) + string(digits[i%10])
}

// Scenario 5: the coverage guard prevents a second solve of an
// already-explored edge.
func TestCoverageGuardPreventsResolve(t *testing.T) {
	ctx := context.Background()
	input := []*expr.Expr{expr.SymByteNode("input0")}
	cov := coverage.New()
	solver := &stubSolver{result: &solve.Solution{Input: []byte{0x42}}}

	run := func() *concolic.Host {
		host := concolic.New("case-5", input, cov, solver)
		r := evmtrace.NewRunner(host)
		r.Step(ctx, evmtrace.Push1(0, 100))
		r.Step(ctx, evmtrace.Push1(2, 0))
		r.Step(ctx, evmtrace.Instruction{PC: 4, Op: vm.CALLDATALOAD, Apply: func(s *evmtrace.Stack) {
			s.Pop()
			s.Push(u64(0))
		}})
		r.Step(ctx, evmtrace.Push1(5, 0x42))
		r.Step(ctx, evmtrace.Instruction{PC: 7, Op: vm.EQ, Apply: func(s *evmtrace.Stack) {
			s.Pop()
			s.Pop()
			s.Push(u64(0))
		}})
		r.Step(ctx, evmtrace.Instruction{PC: 8, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
			s.Pop()
			s.Pop()
		}})
		return host
	}

	run()
	require.Len(t, solver.calls, 1)
	cov.Mark(8, 100) // the flipped edge has now been observed

	run()
	require.Len(t, solver.calls, 1) // no second solve on the same edge
}

// Scenario 6: an unsupported-for-symbolic-modelling opcode between the
// input and the branch concretises the condition; no constraint, no
// solve.
func TestUnsupportedOpcodeFallback(t *testing.T) {
	ctx := context.Background()
	input := []*expr.Expr{expr.SymByteNode("input0")}
	solver := &stubSolver{}
	host := concolic.New("case-6", input, coverage.New(), solver)
	r := evmtrace.NewRunner(host)

	r.Step(ctx, evmtrace.Push1(0, 100)) // dest
	r.Step(ctx, evmtrace.Push1(2, 0))   // calldataload offset
	r.Step(ctx, evmtrace.Instruction{PC: 4, Op: vm.CALLDATALOAD, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Push(u64(0))
	}})
	r.Step(ctx, evmtrace.Push1(5, 32)) // sha3 length
	r.Step(ctx, evmtrace.Instruction{PC: 7, Op: vm.KECCAK256, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(0xCAFE))
	}})
	r.Step(ctx, evmtrace.Push1(8, 0xCAFE))
	r.Step(ctx, evmtrace.Instruction{PC: 10, Op: vm.EQ, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
		s.Push(u64(1))
	}})
	r.Step(ctx, evmtrace.Instruction{PC: 11, Op: vm.JUMPI, Apply: func(s *evmtrace.Stack) {
		s.Pop()
		s.Pop()
	}})

	require.Empty(t, solver.calls)
	require.Empty(t, host.Constraints)
}
