// Package evmtrace is a minimal concrete EVM stepper used by this module's
// own tests and by the cmd/concolicdump demo CLI to drive concolic.Host's
// on_step/on_return hooks end to end, standing in for the real,
// out-of-scope concrete interpreter
// (spec.md §1 lists it as an external collaborator). Its Stack type
// mirrors the shape of Gealber/evm-simulator's ScopeContext.StackData
// ([]uint256.Int, peekable from the top) rather than reimplementing a
// full EVM.
package evmtrace

import (
	"context"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/Cache-and-Burn/ityfuzz/internal/concolic"
)

// Stack is a bare concrete operand stack, satisfying concolic.ConcreteStack.
type Stack struct {
	data []uint256.Int
}

func NewStack() *Stack { return &Stack{} }

func (s *Stack) Push(v uint256.Int) { s.data = append(s.data, v) }

func (s *Stack) Pop() uint256.Int {
	n := len(s.data) - 1
	v := s.data[n]
	s.data = s.data[:n]
	return v
}

func (s *Stack) Peek(n int) uint256.Int { return s.data[len(s.data)-1-n] }

func (s *Stack) Len() int { return len(s.data) }

// Instruction is one step of a scripted test trace: an opcode at a program
// counter, plus the concrete stack effect Apply performs immediately
// after on_step observes the pre-execution stack (mirroring how a real
// interpreter calls the step hook before mutating its own stack).
type Instruction struct {
	PC    uint64
	Op    vm.OpCode
	Apply func(*Stack)
}

// Runner sequences a trace of Instructions through a Host, exactly as the
// real concrete interpreter would: on_step before every opcode, the
// concrete effect immediately after, and on_return wherever the script
// calls it explicitly (a CALL's Apply only pushes the success flag; the
// test drives Return separately once it's done describing the nested
// call's own instructions).
type Runner struct {
	Stack *Stack
	Host  *concolic.Host
}

func NewRunner(host *concolic.Host) *Runner {
	return &Runner{Stack: NewStack(), Host: host}
}

// Step observes then applies one instruction.
func (r *Runner) Step(ctx context.Context, ins Instruction) {
	r.Host.OnStep(ctx, concolic.Step{PC: ins.PC, Op: ins.Op, Stack: r.Stack})
	ins.Apply(r.Stack)
}

// Return invokes on_return, balancing a prior CALL-family push_ctx.
func (r *Runner) Return() {
	r.Host.OnReturn()
}

// Push1 is a convenience Instruction constructor for PUSHn opcodes: the
// scripted trace only ever needs "push this literal", never the specific
// PUSH1..PUSH32 width, since the host treats every PUSH identically
// (push one None).
func Push1(pc uint64, v uint64) Instruction {
	return Instruction{
		PC: pc,
		Op: vm.PUSH1,
		Apply: func(s *Stack) {
			s.Push(*uint256.NewInt(v))
		},
	}
}
