package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool where each task respects context cancellation.
// Wait() will only return the first error seen.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// Ranges splits [0, n) into at most parts contiguous, non-overlapping [lo, hi) ranges of
// near equal length.
func Ranges(n, parts int) [][2]int {
	if n <= 0 {
		return nil
	}
	parts = max(1, min(parts, n))

	out := make([][2]int, 0, parts)
	size, rest := n/parts, n%parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < rest {
			hi++
		}
		out = append(out, [2]int{lo, hi})
		lo = hi
	}
	return out
}

// Partition runs fn over [0, n) split into at most workers disjoint ranges. With a single
// worker fn runs on the calling goroutine. Every index is covered by exactly one call, so
// fn may write per-index state without synchronization.
func Partition(ctx context.Context, n, workers int, fn func(ctx context.Context, lo, hi int) error) error {
	ranges := Ranges(n, workers)
	if len(ranges) <= 1 {
		if len(ranges) == 0 {
			return nil
		}
		return fn(ctx, ranges[0][0], ranges[0][1])
	}

	p := NewPool(ctx, len(ranges))
	for _, r := range ranges {
		p.Go(func(ctx context.Context) error {
			return fn(ctx, r[0], r[1])
		})
	}
	return p.Wait()
}
