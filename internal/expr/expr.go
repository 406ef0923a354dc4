// Package expr implements the symbolic expression language the shadow
// interpreter builds over the EVM stack, memory and storage: an immutable
// DAG of 256-bit bitvector and byte-level nodes, plus a structural
// simplifier (see simplify.go).
package expr

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Op tags every Expr node. Leaves carry their payload directly on the node;
// everything else is an operator over Left (and, for binary ops, Right).
type Op int

const (
	// Leaves.
	OpConstByte Op = iota
	OpSymByte
	OpEvmU256
	OpSlicedInput
	OpFineGrainedInput
	OpCaller
	OpCallValue
	OpBalance

	// Arithmetic.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpSDiv
	OpMod
	OpSMod

	// Bitwise.
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr
	OpSar

	// Comparisons (boolean-shaped; see IsBoolean).
	OpEq
	OpLt
	OpGt
	OpSLt
	OpSGt
	OpLNot

	// Byte-level.
	OpSelect
	OpConcat
)

func (o Op) String() string {
	switch o {
	case OpConstByte:
		return "ConstByte"
	case OpSymByte:
		return "SymByte"
	case OpEvmU256:
		return "EvmU256"
	case OpSlicedInput:
		return "SlicedInput"
	case OpFineGrainedInput:
		return "FineGrainedInput"
	case OpCaller:
		return "Caller"
	case OpCallValue:
		return "CallValue"
	case OpBalance:
		return "Balance"
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	case OpMul:
		return "Mul"
	case OpDiv:
		return "Div"
	case OpSDiv:
		return "SDiv"
	case OpMod:
		return "Mod"
	case OpSMod:
		return "SMod"
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	case OpXor:
		return "Xor"
	case OpNot:
		return "Not"
	case OpShl:
		return "Shl"
	case OpShr:
		return "Shr"
	case OpSar:
		return "Sar"
	case OpEq:
		return "Eq"
	case OpLt:
		return "Lt"
	case OpGt:
		return "Gt"
	case OpSLt:
		return "SLt"
	case OpSGt:
		return "SGt"
	case OpLNot:
		return "LNot"
	case OpSelect:
		return "Select"
	case OpConcat:
		return "Concat"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Expr is an immutable DAG node. Constructors are total functions over
// well-typed children; nothing is evaluated at construction time, and
// simplification is an explicit, separate pass (see Simplify).
type Expr struct {
	Op    Op
	Left  *Expr // sole child for unary ops (Not, LNot) and Select's operand
	Right *Expr // second child for binary ops and Concat's low half

	// Select-only: bit range [High:Low], inclusive, High >= Low.
	High, Low int

	// Leaf payloads. Only the field matching Op is meaningful.
	ConstByte byte
	SymName   string
	Const     *uint256.Int
	Offset    uint64 // SlicedInput
	Start     uint32 // FineGrainedInput
	End       uint32 // FineGrainedInput
}

// ConstByteNode builds a concrete 8-bit byte leaf.
func ConstByteNode(b byte) *Expr { return &Expr{Op: OpConstByte, ConstByte: b} }

// SymByteNode builds a symbolic 8-bit byte leaf named for the solver model.
func SymByteNode(name string) *Expr { return &Expr{Op: OpSymByte, SymName: name} }

// U256Node builds a concrete 256-bit constant leaf.
func U256Node(v *uint256.Int) *Expr { return &Expr{Op: OpEvmU256, Const: v} }

// U256FromUint64 is a convenience constructor for small concrete constants.
func U256FromUint64(v uint64) *Expr { return U256Node(uint256.NewInt(v)) }

// SlicedInputNode builds a leaf reading a 32-byte slice of the top-level
// calldata starting at offset.
func SlicedInputNode(offset uint64) *Expr { return &Expr{Op: OpSlicedInput, Offset: offset} }

// FineGrainedInputNode builds a leaf reading calldata bytes [start:end).
func FineGrainedInputNode(start, end uint32) *Expr {
	return &Expr{Op: OpFineGrainedInput, Start: start, End: end}
}

// CallerNode, CallValueNode and BalanceNode build the three top-level
// inputs the solver is permitted to assign, besides calldata bytes.
func CallerNode() *Expr    { return &Expr{Op: OpCaller} }
func CallValueNode() *Expr { return &Expr{Op: OpCallValue} }
func BalanceNode() *Expr   { return &Expr{Op: OpBalance} }

func bin(op Op, l, r *Expr) *Expr {
	if l == nil || r == nil {
		panic(fmt.Sprintf("expr: %s requires both children", op))
	}
	return &Expr{Op: op, Left: l, Right: r}
}

func Add(l, r *Expr) *Expr  { return bin(OpAdd, l, r) }
func Sub(l, r *Expr) *Expr  { return bin(OpSub, l, r) }
func Mul(l, r *Expr) *Expr  { return bin(OpMul, l, r) }
func Div(l, r *Expr) *Expr  { return bin(OpDiv, l, r) }
func SDiv(l, r *Expr) *Expr { return bin(OpSDiv, l, r) }
func Mod(l, r *Expr) *Expr  { return bin(OpMod, l, r) }
func SMod(l, r *Expr) *Expr { return bin(OpSMod, l, r) }

func And(l, r *Expr) *Expr { return bin(OpAnd, l, r) }
func Or(l, r *Expr) *Expr  { return bin(OpOr, l, r) }
func Xor(l, r *Expr) *Expr { return bin(OpXor, l, r) }
func Not(x *Expr) *Expr {
	if x == nil {
		panic("expr: Not requires a child")
	}
	return &Expr{Op: OpNot, Left: x}
}
func Shl(l, r *Expr) *Expr { return bin(OpShl, l, r) }
func Shr(l, r *Expr) *Expr { return bin(OpShr, l, r) }
func Sar(l, r *Expr) *Expr { return bin(OpSar, l, r) }

func Eq(l, r *Expr) *Expr  { return bin(OpEq, l, r) }
func Lt(l, r *Expr) *Expr  { return bin(OpLt, l, r) }
func Gt(l, r *Expr) *Expr  { return bin(OpGt, l, r) }
func SLt(l, r *Expr) *Expr { return bin(OpSLt, l, r) }
func SGt(l, r *Expr) *Expr { return bin(OpSGt, l, r) }
func LNot(x *Expr) *Expr {
	if x == nil {
		panic("expr: LNot requires a child")
	}
	return &Expr{Op: OpLNot, Left: x}
}

// IsZero builds ISZERO x as Eq(x, 0), per the per-opcode transition law.
func IsZero(x *Expr) *Expr { return Eq(x, U256FromUint64(0)) }

// Select extracts bit range [high:low] (inclusive) from x. Panics if
// high < low or if x's width does not cover high+1 bits, per the data
// model's invariant.
func Select(high, low int, x *Expr) *Expr {
	if high < low {
		panic("expr: Select requires high >= low")
	}
	if x == nil {
		panic("expr: Select requires a child")
	}
	if w := x.Width(); high+1 > w {
		panic(fmt.Sprintf("expr: Select(%d,%d) exceeds child width %d", high, low, w))
	}
	return &Expr{Op: OpSelect, Left: x, High: high, Low: low}
}

// Concat concatenates two bitstrings, most-significant (high) first.
func Concat(high, low *Expr) *Expr {
	if high == nil || low == nil {
		panic("expr: Concat requires both children")
	}
	return &Expr{Op: OpConcat, Left: high, Right: low}
}

// IsBoolean reports whether e is one of the comparison/logical-negation
// ops, which are boolean-shaped (the solver converts them to SMT Bool
// rather than a bitvector) even though, as EVM stack values, they still
// occupy a full 256-bit word of 0 or 1.
func (e *Expr) IsBoolean() bool {
	switch e.Op {
	case OpEq, OpLt, OpGt, OpSLt, OpSGt, OpLNot:
		return true
	default:
		return false
	}
}

// Width reports e's bit width: 8 for byte-level leaves, High-Low+1 for
// Select, the sum of children for Concat, the declared range for FineGrainedInput, 256 for
// everything else (EVM words, including boolean-shaped comparison nodes).
func (e *Expr) Width() int {
	switch e.Op {
	case OpConstByte, OpSymByte:
		return 8
	case OpSelect:
		return e.High - e.Low + 1
	case OpConcat:
		return e.Left.Width() + e.Right.Width()
	case OpFineGrainedInput:
		return int(e.End-e.Start) * 8
	default:
		return 256
	}
}

// ShallowConcrete reports whether e is literally a constant leaf, per the
// data model's base case (ConstByte or EvmU256) without attempting to
// simplify first. Use IsConcrete for the "or trivially simplifiable to
// one" extension.
func (e *Expr) ShallowConcrete() bool {
	return e.Op == OpConstByte || e.Op == OpEvmU256
}

// IsConcrete reports whether e is concrete, simplifying first so that
// e.g. Add(EvmU256(1), EvmU256(1)) is recognised as concrete.
func (e *Expr) IsConcrete() bool {
	return Simplify(e).ShallowConcrete()
}

// Depth returns the DAG's depth along its deepest child chain; leaves have
// depth 1.
func (e *Expr) Depth() int {
	switch e.Op {
	case OpConstByte, OpSymByte, OpEvmU256, OpSlicedInput, OpFineGrainedInput,
		OpCaller, OpCallValue, OpBalance:
		return 1
	case OpNot, OpLNot, OpSelect:
		return e.Left.Depth() + 1
	default:
		ld := 0
		if e.Left != nil {
			ld = e.Left.Depth()
		}
		rd := 0
		if e.Right != nil {
			rd = e.Right.Depth()
		}
		if ld > rd {
			return ld + 1
		}
		return rd + 1
	}
}

// Lnot lifts logical negation through the node, e.g. LNot(Eq(a,b)) stays a
// single Eq-shaped comparison only in the sense that double negation and
// comparison flips collapse; structurally it just builds LNot(e) and lets
// Simplify do the collapsing (Not(Not(x)) -> x, LNot(LNot(x)) -> x).
func (e *Expr) Lnot() *Expr {
	return Simplify(LNot(e))
}

// String renders a human-readable, fully-parenthesised form for debugging.
func (e *Expr) String() string {
	switch e.Op {
	case OpConstByte:
		return fmt.Sprintf("0x%02x", e.ConstByte)
	case OpSymByte:
		return e.SymName
	case OpEvmU256:
		return e.Const.Hex()
	case OpSlicedInput:
		return fmt.Sprintf("input[%d:%d]", e.Offset, e.Offset+32)
	case OpFineGrainedInput:
		return fmt.Sprintf("input[%d:%d]", e.Start, e.End)
	case OpCaller:
		return "CALLER"
	case OpCallValue:
		return "CALLVALUE"
	case OpBalance:
		return "BALANCE"
	case OpNot, OpLNot:
		return fmt.Sprintf("%s(%s)", e.Op, e.Left)
	case OpSelect:
		return fmt.Sprintf("Select(%d,%d)(%s)", e.High, e.Low, e.Left)
	case OpConcat:
		return fmt.Sprintf("Concat(%s, %s)", e.Left, e.Right)
	default:
		return fmt.Sprintf("%s(%s, %s)", e.Op, e.Left, e.Right)
	}
}
