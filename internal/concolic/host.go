// Package concolic implements the shadow interpreter: the engine's
// largest component, generalizing the teacher's callEngine (a parallel
// value stack plus call-frame stack driven by a per-opcode-kind switch,
// internal/engine/interpreter/interpreter.go) from "execute and produce
// concrete values" to "mirror the concrete effect and produce symbolic
// expressions, recording path constraints along the way".
package concolic

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/Cache-and-Burn/ityfuzz/internal/callctx"
	"github.com/Cache-and-Burn/ityfuzz/internal/concolicassert"
	"github.com/Cache-and-Burn/ityfuzz/internal/coverage"
	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
	"github.com/Cache-and-Burn/ityfuzz/internal/logging"
	"github.com/Cache-and-Burn/ityfuzz/internal/solve"
	"github.com/Cache-and-Burn/ityfuzz/internal/symmem"
	"github.com/Cache-and-Burn/ityfuzz/internal/symstore"
)

// ConcreteStack is the slice of the real interpreter's operand stack
// on_step needs: peek-by-index (0 = top, matching DUP/SWAP's own
// n-th-from-top numbering) without mutating it, and its depth for the
// S1 parity assertion.
type ConcreteStack interface {
	Peek(n int) uint256.Int
	Len() int
}

// Step bundles what on_step observes before the concrete interpreter
// executes one opcode.
type Step struct {
	PC    uint64
	Op    vm.OpCode
	Stack ConcreteStack
}

// Host is the top-level concolic state: symbolic stack (parallel to the
// concrete one), symbolic memory and storage, accumulated path
// constraints, a call-context stack for cross-contract calls, and the
// collaborators (solver, coverage map, logger) injected rather than held
// as globals, per SPEC_FULL.md §2's note that the coverage map is injected
// into the host rather than kept as a true global.
type Host struct {
	Stack   []*expr.Expr
	Memory  *symmem.Memory
	Storage *symstore.Store
	Input   []*expr.Expr

	Constraints []*expr.Expr
	Ctxs        *callctx.Stack

	Coverage *coverage.Map
	Solver   solve.Solver
	Log      logging.Logger

	// Solutions accumulates every model found this run, in discovery
	// order; InputID tags them for corpus.Store.
	Solutions []solve.Solution
	InputID   string
}

// New returns a freshly initialized host for one test-case execution.
// input is the top-level calldata expression vector, one SymByte leaf per
// byte, per §6's input-encoding contract.
func New(inputID string, input []*expr.Expr, cov *coverage.Map, solver solve.Solver) *Host {
	return &Host{
		Memory:   symmem.New(),
		Storage:  symstore.New(),
		Input:    input,
		Ctxs:     callctx.New(),
		Coverage: cov,
		Solver:   solver,
		Log:      logging.Discard,
		InputID:  inputID,
	}
}

// OnInsert is the on_insert hook (bytecode deployment notification): a
// no-op in the core, per spec.md §6.
func (h *Host) OnInsert(bytecode []byte, address [20]byte) {}

// checkParity enforces S1 (len(symbolic_stack) == len(concrete_stack) at
// every opcode boundary) when concolicassert.Enabled.
func (h *Host) checkParity(stack ConcreteStack) {
	if concolicassert.Enabled && len(h.Stack) != stack.Len() {
		panic(fmt.Errorf("concolic: stack desynchronisation: symbolic=%d concrete=%d", len(h.Stack), stack.Len()))
	}
}

func (h *Host) pop() *expr.Expr {
	n := len(h.Stack)
	e := h.Stack[n-1]
	h.Stack = h.Stack[:n-1]
	return e
}

func (h *Host) popN(n int) []*expr.Expr {
	out := make([]*expr.Expr, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}

func (h *Host) push(e *expr.Expr) { h.Stack = append(h.Stack, e) }

func (h *Host) pushNone() { h.push(nil) }

// peek returns the symbolic entry n slots from the top, without removing
// it (n=0 is top).
func (h *Host) peek(n int) *expr.Expr {
	return h.Stack[len(h.Stack)-1-n]
}

// operand materialises a usable Expr for a popped symbolic entry: the
// entry itself if present ("Some(expr)"), or a literal EvmU256 leaf built
// from the matching concrete value if it was None, per §4.3's per-opcode
// transition law.
func operand(sym *expr.Expr, concrete uint256.Int) *expr.Expr {
	if sym != nil {
		return sym
	}
	c := concrete
	return expr.U256Node(&c)
}

// OnStep is the on_step hook, invoked before every opcode executes. It is
// the sole dispatch point for the opcode-family table in §4.3.
func (h *Host) OnStep(ctx context.Context, step Step) {
	h.checkParity(step.Stack)
	h.dispatch(ctx, step)
}
