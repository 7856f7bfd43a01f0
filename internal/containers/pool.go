package containers

// Pool recycles containers owned by registry slots. Unlike sync.Pool it never drops
// values, so a steady query population stops allocating once warmed up. Pool is not
// safe for concurrent use.
type Pool[T any] struct {
	newFn   func() T
	resetFn func(T) T
	free    []T

	// reused counts Get calls served from the free list.
	reused int
}

// NewPool returns a pool that creates values with newFn and clears them with resetFn
// when they are returned.
func NewPool[T any](newFn func() T, resetFn func(T) T) *Pool[T] {
	return &Pool[T]{newFn: newFn, resetFn: resetFn}
}

// Get returns an empty value, reusing a released one when available.
func (p *Pool[T]) Get() T {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.reused++
		return v
	}
	return p.newFn()
}

// Put resets v and makes it available to the next Get.
func (p *Pool[T]) Put(v T) {
	p.free = append(p.free, p.resetFn(v))
}

// Idle returns the number of values waiting for reuse.
func (p *Pool[T]) Idle() int {
	return len(p.free)
}

// Reused returns how many Get calls were served without allocating.
func (p *Pool[T]) Reused() int {
	return p.reused
}

// NewMapPool is a Pool of maps cleared on release.
func NewMapPool[K comparable, V any](capacity int) *Pool[map[K]V] {
	return NewPool(
		func() map[K]V { return make(map[K]V, capacity) },
		func(m map[K]V) map[K]V {
			clear(m)
			return m
		},
	)
}

// NewSlicePool is a Pool of slices truncated on release.
func NewSlicePool[T any](capacity int) *Pool[[]T] {
	return NewPool(
		func() []T { return make([]T, 0, capacity) },
		func(s []T) []T { return s[:0] },
	)
}
