package stats

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_TotalIsExact(t *testing.T) {
	const (
		workers      = 8
		perGoroutine = 10000
	)

	c := NewCounter(workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(shard *Shard) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				shard.Incr()
			}
		}(c.Shard(w))
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perGoroutine), c.Total(),
		"no increments may be lost or double counted")
}

func TestCounter_ShardsAreIndependent(t *testing.T) {
	c := NewCounter(4)
	require.Equal(t, 4, c.Shards())

	c.Shard(0).Incr()
	c.Shard(0).Incr()
	c.Shard(2).Add(5)

	assert.Equal(t, uint64(2), c.Shard(0).Load())
	assert.Equal(t, uint64(0), c.Shard(1).Load())
	assert.Equal(t, uint64(5), c.Shard(2).Load())
	assert.Equal(t, uint64(7), c.Total())
}

func TestShard_OccupiesOwnCacheLine(t *testing.T) {
	assert.GreaterOrEqual(t, int(unsafe.Sizeof(Shard{})), 64,
		"adjacent shards must not share a cache line")
}

func BenchmarkCounter_Incr(b *testing.B) {
	c := NewCounter(1)
	s := c.Shard(0)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s.Incr()
		}
	})
}

func BenchmarkCounter_IncrSharded(b *testing.B) {
	c := NewCounter(64)

	var next int
	var mu sync.Mutex

	b.RunParallel(func(pb *testing.PB) {
		mu.Lock()
		s := c.Shard(next % c.Shards())
		next++
		mu.Unlock()

		for pb.Next() {
			s.Incr()
		}
	})
}
