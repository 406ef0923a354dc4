package concolic

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/Cache-and-Burn/ityfuzz/internal/callctx"
	"github.com/Cache-and-Burn/ityfuzz/internal/symmem"
	"github.com/Cache-and-Burn/ityfuzz/internal/symstore"
)

// pushCtx implements §4.4's push_ctx: snapshot the caller's live symbolic
// state into a new Ctx together with the callee's materialised calldata,
// then reset the host to a fresh empty frame. Ownership of the caller's
// stack/memory/storage moves into the Ctx rather than being deep-cloned
// (the source's std::mem::replace move, not a copy: nothing reads the
// caller's symbolic state again until pop_ctx restores it).
func (h *Host) pushCtx(op vm.OpCode, stack ConcreteStack) {
	var offIdx, lenIdx int
	switch op {
	case vm.CALL, vm.CALLCODE:
		offIdx, lenIdx = 3, 4
	case vm.DELEGATECALL, vm.STATICCALL:
		offIdx, lenIdx = 2, 3
	default:
		panic(fmt.Errorf("concolic: pushCtx called for non-call opcode %s", op))
	}
	argOffset := stack.Peek(offIdx).Uint64()
	argLen := stack.Peek(lenIdx).Uint64()
	input := h.Memory.GetSlice(argOffset, argLen)

	h.Ctxs.Push(&callctx.Ctx{
		Stack:   h.Stack,
		Memory:  h.Memory,
		Storage: h.Storage,
		Input:   input,
	})

	h.Stack = nil
	h.Memory = symmem.New()
	h.Storage = symstore.New()
}

// OnReturn is the on_return hook: pop_ctx restores the caller's symbolic
// state. The callee's own (now-finished) symbolic state is discarded, not
// merged back -- cross-call symbolic state is snapshotted per the Non-goal
// in §1.
func (h *Host) OnReturn() {
	ctx := h.Ctxs.Pop()
	h.Stack = ctx.Stack
	h.Memory = ctx.Memory
	h.Storage = ctx.Storage
}
