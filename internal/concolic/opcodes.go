package concolic

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// Byte ranges for the PUSH/DUP/SWAP/LOG opcode families, taken directly
// from the Yellow Paper's opcode table rather than enumerated named
// constants: robust regardless of which aliases a particular go-ethereum
// release exports for any one of the 64 PUSH/DUP/SWAP variants.
const (
	pushLo, pushHi = 0x60, 0x7f
	push0          = 0x5f
	dupLo, dupHi   = 0x80, 0x8f
	swapLo, swapHi = 0x90, 0x9f
	logLo, logHi   = 0xa0, 0xa4

	// Byte values rather than named constants for the two opcodes whose
	// export name has changed across go-ethereum releases (SHA3 was
	// renamed KECCAK256; DIFFICULTY was renamed PREVRANDAO post-Merge),
	// so this dispatch doesn't depend on which name the vendored version
	// happens to export.
	opKeccak256        = 0x20
	opDifficultyOrRand = 0x44
)

func dupN(op vm.OpCode) (int, bool) {
	b := byte(op)
	if b < dupLo || b > dupHi {
		return 0, false
	}
	return int(b-dupLo) + 1, true
}

func swapN(op vm.OpCode) (int, bool) {
	b := byte(op)
	if b < swapLo || b > swapHi {
		return 0, false
	}
	return int(b-swapLo) + 1, true
}

func logN(op vm.OpCode) (int, bool) {
	b := byte(op)
	if b < logLo || b > logHi {
		return 0, false
	}
	return int(b - logLo), true
}

func isPush(op vm.OpCode) bool {
	b := byte(op)
	return b == push0 || (b >= pushLo && b <= pushHi)
}

// dispatch implements the full per-opcode transition law from §4.3.
func (h *Host) dispatch(ctx context.Context, step Step) {
	op := step.Op
	stack := step.Stack

	if isPush(op) {
		h.pushNone()
		return
	}
	if n, ok := dupN(op); ok {
		h.push(h.peek(n - 1))
		return
	}
	if n, ok := swapN(op); ok {
		top := len(h.Stack) - 1
		other := top - n
		h.Stack[top], h.Stack[other] = h.Stack[other], h.Stack[top]
		return
	}
	if n, ok := logN(op); ok {
		h.popN(2 + n) // offset, size, plus n topics
		return
	}
	if byte(op) == opKeccak256 {
		h.popN(2)
		h.pushNone()
		return
	}
	if byte(op) == opDifficultyOrRand {
		h.pushNone()
		return
	}

	switch op {
	// Arithmetic.
	case vm.ADD:
		h.binary(stack, expr.Add)
	case vm.SUB:
		h.binary(stack, expr.Sub)
	case vm.MUL:
		h.binary(stack, expr.Mul)
	case vm.DIV:
		h.binary(stack, expr.Div)
	case vm.SDIV:
		h.binary(stack, expr.SDiv)
	case vm.MOD:
		h.binary(stack, expr.Mod)
	case vm.SMOD:
		h.binary(stack, expr.SMod)
	case vm.ADDMOD:
		h.ternary(stack, func(x, y, z *expr.Expr) *expr.Expr { return expr.Mod(expr.Add(x, y), z) })
	case vm.MULMOD:
		h.ternary(stack, func(x, y, z *expr.Expr) *expr.Expr { return expr.Mod(expr.Mul(x, y), z) })

	// Comparisons.
	case vm.LT:
		h.binary(stack, expr.Lt)
	case vm.GT:
		h.binary(stack, expr.Gt)
	case vm.SLT:
		h.binary(stack, expr.SLt)
	case vm.SGT:
		h.binary(stack, expr.SGt)
	case vm.EQ:
		h.binary(stack, expr.Eq)
	case vm.ISZERO:
		h.unary(stack, expr.IsZero)

	// Bitwise.
	case vm.AND:
		h.binary(stack, expr.And)
	case vm.OR:
		h.binary(stack, expr.Or)
	case vm.XOR:
		h.binary(stack, expr.Xor)
	case vm.NOT:
		h.unary(stack, expr.Not)
	case vm.SHL:
		h.shift(stack, expr.Shl)
	case vm.SHR:
		h.shift(stack, expr.Shr)
	case vm.SAR:
		h.shift(stack, expr.Sar)

	// Concretise-fallback family: pop the opcode's symbolic inputs, push
	// one None per concrete output (one, or none for the *COPY opcodes),
	// record no constraint. Covers opcodes that model poorly
	// (or not at all) in bitvector logic, per the Non-goal in §1.
	case vm.EXP, vm.SIGNEXTEND, vm.BYTE:
		h.popN(2)
		h.pushNone()
	case vm.CREATE:
		h.popN(3)
		h.pushNone()
	case vm.CREATE2:
		h.popN(4)
		h.pushNone()
	case vm.CALLDATACOPY, vm.RETURNDATACOPY, vm.CODECOPY:
		h.popN(3)
	case vm.EXTCODECOPY:
		h.popN(4)
	case vm.BLOCKHASH, vm.EXTCODESIZE, vm.EXTCODEHASH, vm.BALANCE:
		h.popN(1)
		h.pushNone()

	// Environment opacity rules.
	case vm.CALLER:
		if !h.Ctxs.Empty() {
			h.pushNone()
		} else {
			h.push(expr.CallerNode())
		}
	case vm.CALLVALUE:
		if !h.Ctxs.Empty() {
			h.pushNone()
		} else {
			h.push(expr.CallValueNode())
		}
	case vm.CALLDATALOAD:
		h.handleCalldataload(stack)

	// Always-concrete family: no symbolic inputs, push one None output.
	case vm.CALLDATASIZE, vm.CODESIZE, vm.GAS, vm.CHAINID, vm.COINBASE,
		vm.TIMESTAMP, vm.NUMBER, vm.BASEFEE, vm.SELFBALANCE,
		vm.ADDRESS, vm.ORIGIN, vm.PC, vm.MSIZE, vm.GASPRICE, vm.RETURNDATASIZE,
		vm.GASLIMIT:
		h.pushNone()

	// Memory.
	case vm.MLOAD:
		h.handleMload(stack)
	case vm.MSTORE:
		h.handleMstore(stack)
	case vm.MSTORE8:
		h.handleMstore8(stack)

	// Storage.
	case vm.SLOAD:
		h.handleSload(stack)
	case vm.SSTORE:
		h.handleSstore(stack)

	// No symbolic push beyond pops.
	case vm.POP:
		h.pop()
	case vm.JUMPDEST, vm.STOP, vm.INVALID:
		// No stack effect.
	case vm.RETURN, vm.REVERT:
		h.popN(2)

	case vm.JUMP:
		h.pop()
	case vm.JUMPI:
		h.handleJumpi(ctx, step.PC, stack)

	case vm.CALL, vm.CALLCODE:
		h.popN(7)
		h.pushNone()
		h.pushCtx(op, stack)
	case vm.DELEGATECALL, vm.STATICCALL:
		h.popN(6)
		h.pushNone()
		h.pushCtx(op, stack)

	case vm.SELFDESTRUCT:
		h.pop()

	default:
		panic(fmt.Errorf("concolic: unsupported opcode %s", op))
	}
}

func (h *Host) unary(stack ConcreteStack, build func(*expr.Expr) *expr.Expr) {
	xSym := h.pop()
	x := operand(xSym, stack.Peek(0))
	h.push(build(x))
}

// binary handles the pop-2-push-1 family whose concrete effect is
// "x, y := pop(), pop(); push(build(x,y))" with x on top -- every
// arithmetic/bitwise/comparison opcode except the three shifts.
func (h *Host) binary(stack ConcreteStack, build func(l, r *expr.Expr) *expr.Expr) {
	xSym := h.pop() // top
	ySym := h.pop() // second
	x := operand(xSym, stack.Peek(0))
	y := operand(ySym, stack.Peek(1))
	h.push(build(x, y))
}

// shift handles SHL/SHR/SAR, whose concrete pop order is reversed relative
// to the rest of the binary family: the shift amount is on top, the value
// being shifted is second, matching the EVM's own stack convention for
// these three opcodes.
func (h *Host) shift(stack ConcreteStack, build func(value, shift *expr.Expr) *expr.Expr) {
	shiftSym := h.pop() // top
	valueSym := h.pop() // second
	shift := operand(shiftSym, stack.Peek(0))
	value := operand(valueSym, stack.Peek(1))
	h.push(build(value, shift))
}

func (h *Host) ternary(stack ConcreteStack, build func(x, y, z *expr.Expr) *expr.Expr) {
	xSym := h.pop() // top
	ySym := h.pop() // second
	zSym := h.pop() // third
	x := operand(xSym, stack.Peek(0))
	y := operand(ySym, stack.Peek(1))
	z := operand(zSym, stack.Peek(2))
	h.push(build(x, y, z))
}

func (h *Host) handleCalldataload(stack ConcreteStack) {
	offSym := h.pop()
	offset := stack.Peek(0)
	if !h.Ctxs.Empty() {
		input := h.Ctxs.Peek().Input
		bytes := make([]*expr.Expr, 32)
		off := offset.Uint64()
		for i := 0; i < 32; i++ {
			idx := off + uint64(i)
			if idx < uint64(len(input)) {
				bytes[i] = input[idx]
			} else {
				bytes[i] = expr.ConstByteNode(0)
			}
		}
		h.push(expr.Simplify(concatBytes(bytes)))
		return
	}
	_ = offSym // offset is always read concretely per §4.3
	h.push(expr.SlicedInputNode(offset.Uint64()))
}

func concatBytes(bytes []*expr.Expr) *expr.Expr {
	result := bytes[len(bytes)-1]
	for i := len(bytes) - 2; i >= 0; i-- {
		result = expr.Concat(bytes[i], result)
	}
	return result
}

func (h *Host) handleMload(stack ConcreteStack) {
	h.pop() // offset symbolic entry, always read concretely
	addr := stack.Peek(0).Uint64()
	h.push(h.Memory.Get256(addr))
}

// handleMstore and handleMstore8 mirror MSTORE's concrete pop order:
// offset on top (read concretely, never tracked symbolically), value
// second.
func (h *Host) handleMstore(stack ConcreteStack) {
	addr := stack.Peek(0).Uint64()
	valConcrete := stack.Peek(1)
	h.pop() // offset
	valSym := h.pop()
	h.Memory.Insert256(addr, operand(valSym, valConcrete))
}

func (h *Host) handleMstore8(stack ConcreteStack) {
	addr := stack.Peek(0).Uint64()
	valConcrete := stack.Peek(1)
	h.pop() // offset
	valSym := h.pop()
	h.Memory.Insert8(addr, operand(valSym, valConcrete))
}

func (h *Host) handleSload(stack ConcreteStack) {
	h.pop() // key symbolic entry, always read concretely
	key := stack.Peek(0)
	h.push(h.Storage.SLoad(key))
}

// handleSstore mirrors SSTORE's concrete pop order: key on top, value
// second.
func (h *Host) handleSstore(stack ConcreteStack) {
	key := stack.Peek(0)
	valConcrete := stack.Peek(1)
	h.pop() // key
	valSym := h.pop()
	h.Storage.SStore(key, operand(valSym, valConcrete))
}
