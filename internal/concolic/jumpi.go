package concolic

import (
	"context"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

// handleJumpi implements the JUMPI protocol from §4.3 verbatim: cond_expr
// is the symbolic top-of-stack, dest_concrete the second-from-top
// concrete value (the language-level spec's own stack convention, which
// this port follows exactly rather than a particular EVM client's
// argument order). real_constraint is the branch actually taken this
// run; intended_constraint is its negation. A solve is triggered only
// when the flipped edge is uncovered and real_constraint is non-concrete
// (a concrete condition, e.g. an always-true check compiled away, can
// never be usefully negated).
func (h *Host) handleJumpi(ctx context.Context, pc uint64, stack ConcreteStack) {
	condConcrete := stack.Peek(0)
	destConcrete := stack.Peek(1)

	condSym := h.peek(0)
	condExpr := operand(condSym, condConcrete)

	taken := !condConcrete.IsZero()
	var realConstraint *expr.Expr
	if taken {
		realConstraint = condExpr
	} else {
		realConstraint = expr.LNot(condExpr)
	}
	realConstraint = expr.Simplify(realConstraint)
	intendedConstraint := expr.Simplify(expr.LNot(realConstraint))

	dest := destConcrete.Uint64()
	if !h.Coverage.Visited(pc, dest) && !realConstraint.IsConcrete() {
		h.Constraints = append(h.Constraints, intendedConstraint)
		sol, err := h.Solver.Solve(ctx, h.Input, h.Constraints)
		h.Constraints = h.Constraints[:len(h.Constraints)-1]
		if err != nil {
			h.Log.Warn("concolic: solve failed at jumpi", "pc", pc, "err", err)
		} else if sol != nil {
			h.Solutions = append(h.Solutions, *sol)
		}
	}

	if !realConstraint.IsConcrete() {
		h.Constraints = append(h.Constraints, realConstraint)
	}

	// Pop the two symbolic entries (cond, dest); no push.
	h.pop()
	h.pop()
}
