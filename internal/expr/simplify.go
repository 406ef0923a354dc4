package expr

import "github.com/holiman/uint256"

// Simplify performs the bottom-up structural rewrite described in the
// component design: constant folding over concrete arithmetic/bitwise/
// comparison nodes, Select-of-Concat fusion (and its dual, adjacent
// Select-of-the-same-value merging back into a wider Select, which is what
// lets a full 32-byte Concat of Select views collapse back to the original
// value), double-negation collapse, and folding of a Concat whose two
// halves are both constants. Concat chains are not re-associated, and a
// constant zero tail under a symbolic high half is left in place. It is
// idempotent: re-simplifying a simplified tree yields a structurally equal
// tree (see Equal).
func Simplify(e *Expr) *Expr {
	return simplify(e, make(map[*Expr]*Expr))
}

func simplify(e *Expr, memo map[*Expr]*Expr) *Expr {
	if e == nil {
		return nil
	}
	if r, ok := memo[e]; ok {
		return r
	}
	var result *Expr
	switch e.Op {
	case OpConstByte, OpSymByte, OpEvmU256, OpSlicedInput, OpFineGrainedInput,
		OpCaller, OpCallValue, OpBalance:
		result = e
	case OpNot:
		x := simplify(e.Left, memo)
		if x.Op == OpNot {
			result = x.Left
		} else if x.ShallowConcrete() {
			result = foldNot(x)
		} else {
			result = &Expr{Op: OpNot, Left: x}
		}
	case OpLNot:
		x := simplify(e.Left, memo)
		if x.Op == OpLNot {
			result = x.Left
		} else {
			result = &Expr{Op: OpLNot, Left: x}
		}
	case OpSelect:
		// Apply the Select-of-Concat fusion before the Concat's children are
		// folded: folding two constant halves wider than 256 bits into one
		// EvmU256 would drop the high half the range may select.
		if c := e.Left; c.Op == OpConcat {
			if w := c.Right.Width(); e.High < w {
				result = simplify(Select(e.High, e.Low, c.Right), memo)
				break
			} else if e.Low >= w {
				result = simplify(Select(e.High-w, e.Low-w, c.Left), memo)
				break
			}
		}
		x := simplify(e.Left, memo)
		result = simplifySelect(e.High, e.Low, x)
	case OpConcat:
		hi := simplify(e.Left, memo)
		lo := simplify(e.Right, memo)
		result = simplifyConcat(hi, lo)
	default:
		l := simplify(e.Left, memo)
		r := simplify(e.Right, memo)
		if l.ShallowConcrete() && r.ShallowConcrete() {
			if folded, ok := foldBinary(e.Op, l, r); ok {
				result = folded
			}
		}
		if result == nil {
			result = &Expr{Op: e.Op, Left: l, Right: r}
		}
	}
	memo[e] = result
	return result
}

// simplifySelect implements the Select(h,l)(Concat(a,b)) fusion rule and
// the Select(width-1,0)(x) identity, plus re-simplification of an already
// concrete child.
func simplifySelect(high, low int, x *Expr) *Expr {
	if x.ShallowConcrete() {
		return foldSelectConst(high, low, x)
	}
	if x.Op == OpConcat {
		w := x.Right.Width() // width of the low half (b)
		switch {
		case high < w:
			return simplifySelect(high, low, x.Right)
		case low >= w:
			return simplifySelect(high-w, low-w, x.Left)
		}
		// Range straddles the boundary: leave it alone.
	}
	if low == 0 && high == x.Width()-1 {
		return x
	}
	return &Expr{Op: OpSelect, Left: x, High: high, Low: low}
}

// simplifyConcat merges two adjacent Select views of the same underlying
// value back into one wider Select (the dual of the fusion rule above),
// and folds two constant halves into one constant. A Concat with one
// symbolic half is kept as is, even when the other half is zero.
func simplifyConcat(hi, lo *Expr) *Expr {
	if hi.Op == OpSelect && lo.Op == OpSelect && Equal(hi.Left, lo.Left) && hi.Low == lo.High+1 {
		return simplifySelect(hi.High, lo.Low, hi.Left)
	}
	if hi.ShallowConcrete() && lo.ShallowConcrete() {
		if folded, ok := foldConcatConst(hi, lo); ok {
			return folded
		}
	}
	return &Expr{Op: OpConcat, Left: hi, Right: lo}
}

// Equal reports whether a and b are structurally identical expressions.
func Equal(a, b *Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Op != b.Op {
		return false
	}
	switch a.Op {
	case OpConstByte:
		return a.ConstByte == b.ConstByte
	case OpSymByte:
		return a.SymName == b.SymName
	case OpEvmU256:
		return a.Const.Eq(b.Const)
	case OpSlicedInput:
		return a.Offset == b.Offset
	case OpFineGrainedInput:
		return a.Start == b.Start && a.End == b.End
	case OpCaller, OpCallValue, OpBalance:
		return true
	case OpNot, OpLNot:
		return Equal(a.Left, b.Left)
	case OpSelect:
		return a.High == b.High && a.Low == b.Low && Equal(a.Left, b.Left)
	default:
		return Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	}
}

func asU256(x *Expr) *uint256.Int {
	if x.Op == OpConstByte {
		return uint256.NewInt(uint64(x.ConstByte))
	}
	return x.Const
}

func foldNot(x *Expr) *Expr {
	z := new(uint256.Int).Not(asU256(x))
	return U256Node(z)
}

func foldBinary(op Op, l, r *Expr) (*Expr, bool) {
	a, b := asU256(l), asU256(r)
	z := new(uint256.Int)
	switch op {
	case OpAdd:
		return U256Node(z.Add(a, b)), true
	case OpSub:
		return U256Node(z.Sub(a, b)), true
	case OpMul:
		return U256Node(z.Mul(a, b)), true
	case OpDiv:
		return U256Node(z.Div(a, b)), true
	case OpSDiv:
		return U256Node(z.SDiv(a, b)), true
	case OpMod:
		return U256Node(z.Mod(a, b)), true
	case OpSMod:
		return U256Node(z.SMod(a, b)), true
	case OpAnd:
		return U256Node(z.And(a, b)), true
	case OpOr:
		return U256Node(z.Or(a, b)), true
	case OpXor:
		return U256Node(z.Xor(a, b)), true
	case OpShl:
		if n, ok := shiftCount(b); ok {
			return U256Node(z.Lsh(a, n)), true
		}
		return U256Node(uint256.NewInt(0)), true
	case OpShr:
		if n, ok := shiftCount(b); ok {
			return U256Node(z.Rsh(a, n)), true
		}
		return U256Node(uint256.NewInt(0)), true
	case OpSar:
		if n, ok := shiftCount(b); ok {
			return U256Node(z.SRsh(a, n)), true
		}
		if isNegative256(a) {
			return U256Node(allOnes()), true
		}
		return U256Node(uint256.NewInt(0)), true
	case OpEq:
		return boolConst(a.Eq(b)), true
	case OpLt:
		return boolConst(a.Lt(b)), true
	case OpGt:
		return boolConst(a.Gt(b)), true
	case OpSLt:
		return boolConst(a.Slt(b)), true
	case OpSGt:
		return boolConst(a.Sgt(b)), true
	default:
		return nil, false
	}
}

func foldSelectConst(high, low int, x *Expr) *Expr {
	if x.Op == OpConstByte {
		v := uint256.NewInt(uint64(x.ConstByte))
		return sliceU256(v, high, low, 8)
	}
	return sliceU256(x.Const, high, low, 256)
}

// sliceU256 extracts bits [high:low] of a width-bit value v, returning a
// ConstByte leaf for an 8-bit result and an EvmU256 leaf otherwise.
func sliceU256(v *uint256.Int, high, low, width int) *Expr {
	shifted := new(uint256.Int).Rsh(v, uint(low))
	bits := high - low + 1
	var mask uint256.Int
	mask.SetAllOne()
	if bits < 256 {
		one := uint256.NewInt(1)
		shiftedOne := new(uint256.Int).Lsh(one, uint(bits))
		mask.Sub(shiftedOne, one)
	}
	shifted.And(shifted, &mask)
	if bits == 8 {
		return ConstByteNode(byte(shifted.Uint64()))
	}
	return U256Node(shifted)
}

func foldConcatConst(hi, lo *Expr) (*Expr, bool) {
	loWidth := lo.Width()
	hiVal := asU256(hi)
	loVal := asU256(lo)
	shifted := new(uint256.Int).Lsh(hiVal, uint(loWidth))
	result := new(uint256.Int).Or(shifted, loVal)
	if hi.Width()+loWidth == 8 {
		return ConstByteNode(byte(result.Uint64())), true
	}
	return U256Node(result), true
}

func boolConst(v bool) *Expr {
	if v {
		return U256FromUint64(1)
	}
	return U256FromUint64(0)
}

func shiftCount(b *uint256.Int) (uint, bool) {
	if !b.IsUint64() {
		return 0, false
	}
	v := b.Uint64()
	if v >= 256 {
		return 0, false
	}
	return uint(v), true
}

func isNegative256(v *uint256.Int) bool {
	bs := v.Bytes32()
	return bs[0]&0x80 != 0
}

func allOnes() *uint256.Int {
	var z uint256.Int
	z.SetAllOne()
	return &z
}
