package solve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// These tests exercise the lowering tables directly rather than spawning a
// real z3 process, so they run without the solver binary on PATH.

func inputBytes(n int) []*expr.Expr {
	out := make([]*expr.Expr, n)
	for i := range out {
		out[i] = expr.SymByteNode(byteName(i))
	}
	return out
}

func byteName(i int) string {
	return "input" + string(rune('0'+i))
}

func TestLowerBVConstLiteral(t *testing.T) {
	c := newLowerCtx(nil)
	term, err := c.lowerBV(expr.U256FromUint64(42))
	require.NoError(t, err)
	require.Equal(t, "(_ bv42 256)", term)
}

func TestLowerBoolEqEmitsEquality(t *testing.T) {
	c := newLowerCtx(nil)
	term, err := c.lowerBool(expr.Eq(expr.U256FromUint64(1), expr.U256FromUint64(2)))
	require.NoError(t, err)
	require.Equal(t, "(= (_ bv1 256) (_ bv2 256))", term)
}

func TestLowerBoolLNotNegatesInner(t *testing.T) {
	c := newLowerCtx(nil)
	term, err := c.lowerBool(expr.LNot(expr.Lt(expr.U256FromUint64(1), expr.U256FromUint64(2))))
	require.NoError(t, err)
	require.Equal(t, "(not (bvult (_ bv1 256) (_ bv2 256)))", term)
}

func TestLowerCallValueMarksField(t *testing.T) {
	c := newLowerCtx(nil)
	term, err := c.lowerBV(expr.CallValueNode())
	require.NoError(t, err)
	require.Equal(t, "callvalue", term)
	require.True(t, c.fields[FieldCallValue])
	require.False(t, c.fields[FieldCaller])
}

func TestLowerSlicedInputConcatenatesBytes(t *testing.T) {
	ib := inputBytes(2)
	c := newLowerCtx(ib)
	term, err := c.lowerInputRange(0, 2)
	require.NoError(t, err)
	require.Equal(t, "(concat input0 input1)", term)
}

func TestLowerSlicedInputZeroExtendsPastEnd(t *testing.T) {
	ib := inputBytes(1)
	c := newLowerCtx(ib)
	term, err := c.lowerInputRange(0, 2)
	require.NoError(t, err)
	require.Equal(t, "(concat input0 (_ bv0 8))", term)
}

func TestBuildScriptDeclaresAllInputBytesUnconditionally(t *testing.T) {
	c := newLowerCtx(inputBytes(2))
	script := c.buildScript(nil)
	require.Contains(t, script, "(declare-const input0 (_ BitVec 8))")
	require.Contains(t, script, "(declare-const input1 (_ BitVec 8))")
	require.Contains(t, script, "(declare-const callvalue (_ BitVec 256))")
	require.Contains(t, script, "(get-value (input0 input1 callvalue caller))")
}

func TestLowerUnmodellableOperandErrors(t *testing.T) {
	c := newLowerCtx(nil)
	// A raw Select over a concrete byte is fine, but a constraint tag
	// outside the comparison/LNot set must be reported so the caller can
	// drop it rather than emit garbage SMT.
	_, err := c.lowerBool(expr.U256FromUint64(1))
	require.Error(t, err)
}

func TestExtractSolutionDecodesModel(t *testing.T) {
	ib := inputBytes(1)
	c := newLowerCtx(ib)
	c.fields[FieldCallValue] = true
	callerHex := strings.Repeat("0", 24) + "aa" + strings.Repeat("0", 38)
	values := map[string]string{
		"input0":    "2a",
		"callvalue": "3e8",
		"caller":    callerHex,
	}
	sol, err := c.extractSolution(values)
	require.NoError(t, err)
	require.Equal(t, []byte{0x2a}, sol.Input)
	require.Equal(t, uint64(1000), sol.Value.Uint64())
	require.Equal(t, []Field{FieldCallValue}, sol.Fields)
	require.Equal(t, byte(0xaa), sol.Caller[0])
}

func TestParseZ3OutputExtractsValues(t *testing.T) {
	out := "sat\n((input0 #x2a) (callvalue #x03e8) (caller #x00))\n"
	verdict, values := parseZ3Output(out)
	require.Equal(t, "sat", verdict)
	require.Equal(t, "2a", values["input0"])
	require.Equal(t, "03e8", values["callvalue"])
}
