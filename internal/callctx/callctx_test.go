package callctx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
	"github.com/Cache-and-Burn/ityfuzz/internal/symmem"
	"github.com/Cache-and-Burn/ityfuzz/internal/symstore"
)

func newCtx() *Ctx {
	return &Ctx{Memory: symmem.New(), Storage: symstore.New()}
}

func TestPushPopBalanced(t *testing.T) {
	s := New()
	require.True(t, s.Empty())
	c1 := newCtx()
	c1.Input = []*expr.Expr{expr.ConstByteNode(1)}
	s.Push(c1)
	require.Equal(t, 1, s.Depth())
	got := s.Pop()
	require.Same(t, c1, got)
	require.True(t, s.Empty())
}

func TestNestedPushPop(t *testing.T) {
	s := New()
	s.Push(newCtx())
	s.Push(newCtx())
	require.Equal(t, 2, s.Depth())
	s.Pop()
	require.Equal(t, 1, s.Depth())
	s.Pop()
	require.Equal(t, 0, s.Depth())
}

func TestPopEmptyPanics(t *testing.T) {
	s := New()
	require.Panics(t, func() { s.Pop() })
}
