package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	const maxParallelism = 3
	pool := New(maxParallelism)
	var running, maxRunning, count atomic.Int32
	for range 20 {
		pool.WaitToStart(func() {
			current := running.Add(1)
			for {
				seen := maxRunning.Load()
				if current <= seen || maxRunning.CompareAndSwap(seen, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			runtime.Gosched()
			running.Add(-1)
			count.Add(1)
		})
	}
	pool.Wait()
	assert.Equal(t, int32(20), count.Load())
	assert.LessOrEqual(t, int(maxRunning.Load()), maxParallelism)
	assert.Equal(t, int32(0), running.Load())
}

func TestPoolInline(t *testing.T) {
	pool := New(0)
	var count int
	pool.WaitToStart(func() { count++ })
	// Inline execution: finished when WaitToStart returns.
	assert.Equal(t, 1, count)
	pool.Wait()

	require.Equal(t, runtime.NumCPU(), New(-1).MaxParallelism())
}
