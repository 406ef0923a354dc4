package coverage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMapIsAllUnvisited(t *testing.T) {
	m := New()
	require.False(t, m.Visited(10, 20))
}

func TestMarkThenVisited(t *testing.T) {
	m := New()
	m.Mark(10, 20)
	require.True(t, m.Visited(10, 20))
}

func TestIndexIsDeterministic(t *testing.T) {
	require.Equal(t, Index(1, 2), Index(1, 2))
}

func TestIndexWithinBounds(t *testing.T) {
	for pc := uint64(0); pc < 50; pc++ {
		idx := Index(pc, pc*7+1)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, MapSize)
	}
}

func TestMarkOnlyAffectsItsOwnEdge(t *testing.T) {
	m := New()
	m.Mark(1, 2)
	if Index(1, 2) != Index(3, 4) {
		require.False(t, m.Visited(3, 4))
	}
}
