package symstore

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Cache-and-Burn/ityfuzz/internal/expr"
)

func TestSLoadOfUnwrittenSlotIsNil(t *testing.T) {
	s := New()
	require.Nil(t, s.SLoad(*uint256.NewInt(1)))
}

func TestSStoreThenSLoadRoundTrips(t *testing.T) {
	s := New()
	key := *uint256.NewInt(7)
	v := expr.SlicedInputNode(0)
	s.SStore(key, v)
	require.True(t, expr.Equal(s.SLoad(key), v))
}

func TestSStoreOverwrites(t *testing.T) {
	s := New()
	key := *uint256.NewInt(7)
	s.SStore(key, expr.U256FromUint64(1))
	s.SStore(key, expr.U256FromUint64(2))
	got := s.SLoad(key)
	require.True(t, got.IsConcrete())
	require.Equal(t, uint64(2), got.Const.Uint64())
}
