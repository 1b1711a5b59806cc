package ir

import (
	"sort"
	"sync/atomic"
	"testing"
)

func TestMapParallel_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got := MapParallel(items, 4, func(n int) int { return n * n })

	for i, n := range items {
		if got[i] != n*n {
			t.Errorf("index %d: expected %d, got %d", i, n*n, got[i])
		}
	}
}

func TestMapParallel_EmptyInput(t *testing.T) {
	got := MapParallel([]int{}, 4, func(n int) int { return n })
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestMapParallel_ClampsWorkersBelowOne(t *testing.T) {
	got := MapParallel([]int{1, 2, 3}, 0, func(n int) int { return n + 1 })
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestWorkerPool_ProcessesAllJobs(t *testing.T) {
	pool := NewWorkerPool[int, int](3, 10)
	pool.Start(func(n int) int { return n * 2 })

	for i := 1; i <= 10; i++ {
		pool.Submit(i)
	}
	pool.Close()

	var results []int
	for r := range pool.Results() {
		results = append(results, r)
	}
	sort.Ints(results)

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		want := (i + 1) * 2
		if r != want {
			t.Errorf("expected %d at position %d, got %d", want, i, r)
		}
	}
}

func TestWorkerPool_ClampsWorkersBelowOne(t *testing.T) {
	pool := NewWorkerPool[int, int](-5, 1)
	var calls int32
	pool.Start(func(n int) int {
		atomic.AddInt32(&calls, 1)
		return n
	})
	pool.Submit(1)
	pool.Close()
	<-pool.Results()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}
