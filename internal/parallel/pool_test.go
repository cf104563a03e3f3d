package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelForCoversRange(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	for _, n := range []int{0, 1, 3, 4, 5, 17, 1000} {
		hits := make([]int32, n)
		pool.ParallelFor(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "n=%d index %d", n, i)
		}
	}
}

func TestParallelForAtomicCoversRange(t *testing.T) {
	pool := New(3)
	defer pool.Close()

	const n = 513
	hits := make([]int32, n)
	pool.ParallelForAtomic(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	})
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestConcurrentCallers(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.ParallelFor(100, func(start, end int) {
				total.Add(int64(end - start))
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), total.Load())
}

func TestClosedPoolRunsSequentially(t *testing.T) {
	pool := New(4)
	pool.Close()
	pool.Close()

	sum := 0
	pool.ParallelFor(10, func(start, end int) {
		for i := start; i < end; i++ {
			sum += i
		}
	})
	pool.ParallelForAtomic(10, func(i int) { sum += i })
	assert.Equal(t, 90, sum)
}

func TestDefaultWorkers(t *testing.T) {
	pool := New(0)
	defer pool.Close()
	assert.Positive(t, pool.NumWorkers())
}
