package containers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeListIsLIFO(t *testing.T) {
	var f FreeList

	_, ok := f.Pop()
	require.False(t, ok)

	f.Push(3)
	f.Push(1)
	f.Push(7)
	require.Equal(t, 3, f.Len())

	for _, expected := range []int{7, 1, 3} {
		idx, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, expected, idx)
	}

	f.Push(5)
	f.Reset()
	require.Zero(t, f.Len())
}

func TestPool(t *testing.T) {
	t.Run("map_pool_clears_on_put", func(t *testing.T) {
		p := NewMapPool[int64, float64](4)

		m := p.Get()
		m[1] = 0.5
		m[2] = 0.7
		p.Put(m)
		require.Equal(t, 1, p.Idle())

		reused := p.Get()
		require.Empty(t, reused)
		require.Equal(t, 1, p.Reused())
		require.Zero(t, p.Idle())
	})

	t.Run("slice_pool_keeps_capacity", func(t *testing.T) {
		p := NewSlicePool[int64](2)

		s := p.Get()
		s = append(s, 1, 2, 3, 4, 5)
		capacity := cap(s)
		p.Put(s)

		reused := p.Get()
		require.Empty(t, reused)
		require.Equal(t, capacity, cap(reused))
	})

	t.Run("get_allocates_when_empty", func(t *testing.T) {
		created := 0
		p := NewPool(func() *int {
			created++
			return new(int)
		}, func(v *int) *int {
			*v = 0
			return v
		})

		a := p.Get()
		b := p.Get()
		require.NotSame(t, a, b)
		require.Equal(t, 2, created)

		*a = 42
		p.Put(a)
		c := p.Get()
		require.Same(t, a, c)
		require.Zero(t, *c)
		require.Equal(t, 2, created)
	})
}
