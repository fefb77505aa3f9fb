package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_LazyAllocation(t *testing.T) {
	bp := NewBufferPool(1024, 8)

	assert.Equal(t, 0, bp.FreeLen(), "a fresh pool holds no buffers")

	buf := bp.Get()
	require.Len(t, buf, 1024)

	_, _, allocs := bp.Stats()
	assert.Equal(t, uint64(1), allocs)
}

func TestBufferPool_Recycle(t *testing.T) {
	bp := NewBufferPool(512, 4)

	buf := bp.Get()
	buf[0] = 0xAB
	bp.Put(buf)
	require.Equal(t, 1, bp.FreeLen())

	again := bp.Get()
	assert.Equal(t, byte(0xAB), again[0], "recycled buffer should come back as-is")
	assert.Equal(t, 0, bp.FreeLen())

	_, _, allocs := bp.Stats()
	assert.Equal(t, uint64(1), allocs, "the recycled get must not allocate")
}

func TestBufferPool_RecycleCap(t *testing.T) {
	bp := NewBufferPool(256, 2)

	bufs := make([][]byte, 5)
	for i := range bufs {
		bufs[i] = bp.Get()
	}
	for _, buf := range bufs {
		bp.Put(buf)
	}

	assert.Equal(t, 2, bp.FreeLen(), "free list must stay at the recycle cap")
}

func TestBufferPool_SteadyState(t *testing.T) {
	// With concurrency at or below the recycle cap, every buffer after the
	// first wave comes from the free list.
	const (
		inFlight   = 8
		recycleCap = 16
	)
	bp := NewBufferPool(256, recycleCap)

	live := make([][]byte, 0, inFlight)
	for cycle := 0; cycle < 50; cycle++ {
		for i := 0; i < inFlight; i++ {
			live = append(live, bp.Get())
		}
		for _, buf := range live {
			bp.Put(buf)
		}
		live = live[:0]

		require.LessOrEqual(t, bp.FreeLen(), recycleCap)
	}

	_, _, allocs := bp.Stats()
	assert.Equal(t, uint64(inFlight), allocs,
		"churn at fixed concurrency must stop allocating after warmup")
}

func TestBufferPool_ForeignBufferDropped(t *testing.T) {
	bp := NewBufferPool(1024, 8)

	bp.Put(make([]byte, 99))
	assert.Equal(t, 0, bp.FreeLen(), "wrong-capacity buffers are not pooled")
}

func BenchmarkBufferPool_GetPut(b *testing.B) {
	bp := NewBufferPool(64*1024, 256)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bp.Put(bp.Get())
	}
}
