package concurrency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRanges(t *testing.T) {
	for _, tc := range []struct {
		name     string
		n, parts int
		expected [][2]int
	}{
		{name: "empty", n: 0, parts: 4, expected: nil},
		{name: "single_part", n: 5, parts: 1, expected: [][2]int{{0, 5}}},
		{name: "even", n: 6, parts: 3, expected: [][2]int{{0, 2}, {2, 4}, {4, 6}}},
		{name: "uneven", n: 7, parts: 3, expected: [][2]int{{0, 3}, {3, 5}, {5, 7}}},
		{name: "more_parts_than_items", n: 2, parts: 8, expected: [][2]int{{0, 1}, {1, 2}}},
		{name: "non_positive_parts", n: 3, parts: 0, expected: [][2]int{{0, 3}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Ranges(tc.n, tc.parts))
		})
	}
}

func TestPartitionCoversEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8} {
		hits := make([]int, 101)
		err := Partition(context.Background(), len(hits), workers, func(_ context.Context, lo, hi int) error {
			for i := lo; i < hi; i++ {
				hits[i]++
			}
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			require.Equal(t, 1, h, "index %d with %d workers", i, workers)
		}
	}
}

func TestPartitionReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := Partition(context.Background(), 10, 4, func(ctx context.Context, lo, _ int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestPartitionNothingToDo(t *testing.T) {
	called := false
	err := Partition(context.Background(), 0, 4, func(context.Context, int, int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}
