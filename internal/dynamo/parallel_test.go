package dynamo

import (
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRange(t *testing.T) {
	cases := []struct{ n, minChunk, workers int }{
		{0, 1, 4},
		{1, 1, 4},
		{10, 64, 4},
		{1000, 64, 4},
		{1000, 1, 7},
		{1000, 0, 1000},
	}
	for _, c := range cases {
		hits := make([]int32, c.n)
		ParallelFor(c.n, c.minChunk, c.workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d workers=%d: index %d visited %d times", c.n, c.workers, i, h)
			}
		}
	}
}

func TestParallelForRespectsMinChunk(t *testing.T) {
	var calls atomic.Int32
	ParallelFor(100, 40, 8, func(start, end int) {
		calls.Add(1)
		if end-start < 34 {
			t.Errorf("chunk [%d,%d) smaller than expected", start, end)
		}
	})
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}
