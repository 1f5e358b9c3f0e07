package balancedq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStack(t *testing.T) {
	s := newStack[*int](3)
	require.Equal(t, 3, s.capacity())
	require.Equal(t, 3, s.free())

	a, b, c, d := 1, 2, 3, 4
	require.True(t, s.push(&a))
	require.True(t, s.push(&b))
	require.True(t, s.push(&c))
	require.True(t, s.full())
	require.False(t, s.push(&d))

	v, ok := s.pop()
	require.True(t, ok)
	require.Equal(t, &c, v)
	require.Nil(t, s.slots[2])
	require.Equal(t, 2, s.len())

	require.Equal(t, 2, s.clear())
	require.Equal(t, 0, s.len())
	require.Nil(t, s.slots[0])
	require.Nil(t, s.slots[1])

	_, ok = s.pop()
	require.False(t, ok)
}
