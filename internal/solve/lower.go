package solve

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// lowerCtx carries the fixed set of top-level free variables (one per
// input byte, plus callvalue/caller/balance) and records, as a side
// effect of lowering, which of Caller/CallValue a query actually
// referenced.
type lowerCtx struct {
	inputBytes []*expr.Expr
	fields     map[Field]bool
}

func newLowerCtx(inputBytes []*expr.Expr) *lowerCtx {
	return &lowerCtx{inputBytes: inputBytes, fields: map[Field]bool{}}
}

// buildScript assembles the full SMT-LIB2 script: the 1000ms solver-side
// timeout, one declare-const per top-level variable (all of them, whether
// or not any assert references them, per §4.5 step 2), the supplied
// assertions, check-sat, and a get-value over the input bytes, callvalue
// and caller (balance is declared but not read back).
func (c *lowerCtx) buildScript(asserts []string) string {
	var b strings.Builder
	b.WriteString("(set-option :timeout 1000)\n")
	for _, ib := range c.inputBytes {
		fmt.Fprintf(&b, "(declare-const %s (_ BitVec 8))\n", ib.SymName)
	}
	b.WriteString("(declare-const callvalue (_ BitVec 256))\n")
	b.WriteString("(declare-const caller (_ BitVec 256))\n")
	b.WriteString("(declare-const balance (_ BitVec 256))\n")
	for _, a := range asserts {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	b.WriteString("(check-sat)\n")
	b.WriteString("(get-value (")
	for i, ib := range c.inputBytes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ib.SymName)
	}
	b.WriteString(" callvalue caller))\n")
	return b.String()
}

// lowerBool converts a boolean-shaped node (the only shape a top-level
// constraint may have, per §4.5 step 4: GT/SGT/LT/SLT/EQ or a unary LNot
// over one) to an SMT Bool term.
func (c *lowerCtx) lowerBool(e *expr.Expr) (string, error) {
	switch e.Op {
	case expr.OpLNot:
		inner, err := c.lowerBool(e.Left)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(not %s)", inner), nil
	case expr.OpEq, expr.OpLt, expr.OpGt, expr.OpSLt, expr.OpSGt:
		l, err := c.lowerBV(e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.lowerBV(e.Right)
		if err != nil {
			return "", err
		}
		op, ok := boolOps[e.Op]
		if !ok {
			return "", fmt.Errorf("solve: unmodellable comparison tag %s", e.Op)
		}
		return fmt.Sprintf("(%s %s %s)", op, l, r), nil
	default:
		return "", fmt.Errorf("solve: constraint tag %s is not boolean-shaped, skipping", e.Op)
	}
}

var boolOps = map[expr.Op]string{
	expr.OpEq:  "=",
	expr.OpLt:  "bvult",
	expr.OpGt:  "bvugt",
	expr.OpSLt: "bvslt",
	expr.OpSGt: "bvsgt",
}

var bvOps = map[expr.Op]string{
	expr.OpAdd:  "bvadd",
	expr.OpSub:  "bvsub",
	expr.OpMul:  "bvmul",
	expr.OpDiv:  "bvudiv",
	expr.OpSDiv: "bvsdiv",
	expr.OpMod:  "bvurem",
	expr.OpSMod: "bvsmod",
	expr.OpAnd:  "bvand",
	expr.OpOr:   "bvor",
	expr.OpXor:  "bvxor",
	expr.OpShl:  "bvshl",
	expr.OpShr:  "bvlshr",
	expr.OpSar:  "bvashr",
}

// lowerBV converts any node to an SMT bitvector term of width e.Width().
// Boolean-shaped children (comparisons nested inside arithmetic, an
// unusual but legal shape) are coerced via ite to a bitvector of the
// node's own width (256 bits for every comparison), holding 0 or 1.
func (c *lowerCtx) lowerBV(e *expr.Expr) (string, error) {
	switch e.Op {
	case expr.OpConstByte:
		return fmt.Sprintf("(_ bv%d 8)", e.ConstByte), nil
	case expr.OpEvmU256:
		return fmt.Sprintf("(_ bv%s 256)", e.Const.Dec()), nil
	case expr.OpSymByte:
		return e.SymName, nil
	case expr.OpSlicedInput:
		return c.lowerInputRange(uint32(e.Offset), uint32(e.Offset+32))
	case expr.OpFineGrainedInput:
		return c.lowerInputRange(e.Start, e.End)
	case expr.OpCaller:
		c.fields[FieldCaller] = true
		return "caller", nil
	case expr.OpCallValue:
		c.fields[FieldCallValue] = true
		return "callvalue", nil
	case expr.OpBalance:
		return "balance", nil
	case expr.OpNot:
		inner, err := c.lowerBV(e.Left)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(bvnot %s)", inner), nil
	case expr.OpSelect:
		inner, err := c.lowerBV(e.Left)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((_ extract %d %d) %s)", e.High, e.Low, inner), nil
	case expr.OpConcat:
		hi, err := c.lowerBV(e.Left)
		if err != nil {
			return "", err
		}
		lo, err := c.lowerBV(e.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(concat %s %s)", hi, lo), nil
	case expr.OpEq, expr.OpLt, expr.OpGt, expr.OpSLt, expr.OpSGt, expr.OpLNot:
		b, err := c.lowerBool(e)
		if err != nil {
			return "", err
		}
		width := e.Width()
		return fmt.Sprintf("(ite %s (_ bv1 %d) (_ bv0 %d))", b, width, width), nil
	default:
		op, ok := bvOps[e.Op]
		if !ok {
			return "", fmt.Errorf("solve: unmodellable operand tag %s", e.Op)
		}
		l, err := c.lowerBV(e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.lowerBV(e.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", op, l, r), nil
	}
}

// lowerInputRange concatenates the declared input-byte variables covering
// [start,end), most-significant byte first, zero-extending past the end
// of the top-level calldata vector (SlicedInput/FineGrainedInput may
// legally reach past what the fuzzer actually supplied).
func (c *lowerCtx) lowerInputRange(start, end uint32) (string, error) {
	if end <= start {
		return "", fmt.Errorf("solve: empty input range [%d,%d)", start, end)
	}
	terms := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if int(i) < len(c.inputBytes) {
			terms = append(terms, c.inputBytes[i].SymName)
		} else {
			terms = append(terms, "(_ bv0 8)")
		}
	}
	term := terms[len(terms)-1]
	for i := len(terms) - 2; i >= 0; i-- {
		term = fmt.Sprintf("(concat %s %s)", terms[i], term)
	}
	return term, nil
}

// extractSolution reads the z3 get-value model (name -> hex digits,
// without the "0x" prefix) back into a Solution.
func (c *lowerCtx) extractSolution(values map[string]string) (*Solution, error) {
	input := make([]byte, len(c.inputBytes))
	for i, ib := range c.inputBytes {
		hexVal, ok := values[ib.SymName]
		if !ok {
			return nil, fmt.Errorf("solve: model missing value for %s", ib.SymName)
		}
		b, err := decodeByte(hexVal)
		if err != nil {
			return nil, fmt.Errorf("solve: decoding %s: %w", ib.SymName, err)
		}
		input[i] = b
	}

	value := new(uint256.Int)
	if hexVal, ok := values["callvalue"]; ok {
		raw, err := hex.DecodeString(pad(hexVal, 64))
		if err != nil {
			return nil, fmt.Errorf("solve: decoding callvalue: %w", err)
		}
		value.SetBytes(raw)
	}

	var caller common.Address
	if hexVal, ok := values["caller"]; ok {
		raw, err := hex.DecodeString(pad(hexVal, 64))
		if err != nil {
			return nil, fmt.Errorf("solve: decoding caller: %w", err)
		}
		caller.SetBytes(raw[len(raw)-20:])
	}

	fields := make([]Field, 0, len(c.fields))
	for _, f := range []Field{FieldCaller, FieldCallValue} {
		if c.fields[f] {
			fields = append(fields, f)
		}
	}

	return &Solution{Input: input, Caller: caller, Value: value, Fields: fields}, nil
}

func decodeByte(hexVal string) (byte, error) {
	raw, err := hex.DecodeString(pad(hexVal, 2))
	if err != nil {
		return 0, err
	}
	return raw[len(raw)-1], nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
