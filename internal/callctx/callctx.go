// Package callctx implements the per-call-frame snapshot the shadow
// interpreter pushes on CALL/CALLCODE/DELEGATECALL/STATICCALL and pops on
// return, generalizing the teacher's callFrame/pushFrame/popFrame pair
// (internal/engine/interpreter) from "one entry per Wasm function
// activation" to "one entry per EVM cross-contract call".
package callctx

import (
	"fmt"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
	"github.com/Cache-and-Burn/ityfuzz/internal/symmem"
	"github.com/Cache-and-Burn/ityfuzz/internal/symstore"
)

// Ctx is the tuple of (symbolic stack, symbolic memory, symbolic storage,
// inbound calldata expressions) for one call frame.
type Ctx struct {
	Stack   []*expr.Expr
	Memory  *symmem.Memory
	Storage *symstore.Store
	Input   []*expr.Expr
}

// Stack is a LIFO of call contexts. Push and pop are strictly balanced
// across nested calls (S3); popping an empty stack is the CtxImbalance
// fatal condition from the error taxonomy.
type Stack struct {
	frames []*Ctx
}

// New returns an empty ctx stack.
func New() *Stack { return &Stack{} }

// Push saves ctx onto the stack.
func (s *Stack) Push(ctx *Ctx) {
	s.frames = append(s.frames, ctx)
}

// Pop restores and removes the top ctx. It panics on an empty stack
// (CtxImbalance is fatal per the error taxonomy: a well-formed concrete
// interpreter never calls on_return without a matching push_ctx).
func (s *Stack) Pop() *Ctx {
	if len(s.frames) == 0 {
		panic(fmt.Errorf("callctx: pop_ctx on empty ctx stack"))
	}
	last := len(s.frames) - 1
	ctx := s.frames[last]
	s.frames = s.frames[:last]
	return ctx
}

// Depth reports the current nesting depth, used to tell whether the host
// is inside a nested call (e.g. for CALLER/CALLVALUE concretisation).
func (s *Stack) Depth() int { return len(s.frames) }

// Peek returns the top ctx without removing it, giving CALLDATALOAD access
// to the live callee's inbound calldata while that frame is executing.
func (s *Stack) Peek() *Ctx {
	if len(s.frames) == 0 {
		panic(fmt.Errorf("callctx: peek on empty ctx stack"))
	}
	return s.frames[len(s.frames)-1]
}

// Empty reports whether the ctx stack is at top level (no nested call in
// progress).
func (s *Stack) Empty() bool { return len(s.frames) == 0 }
