package pools

import "sync/atomic"

// BufferPool recycles fixed-size read buffers for a single worker. Buffers
// are allocated on demand and at most recycleCap of them are kept after
// release, so an idle worker holds no buffers and a busy one converges on
// its in-flight count plus the recycle cap.
//
// The free list is deliberately not a sync.Pool: each worker owns exactly
// one BufferPool and never shares it, and the recycle bound must survive GC
// cycles. Not safe for concurrent use.
type BufferPool struct {
	free [][]byte
	size int
	keep int

	gets   atomic.Uint64
	puts   atomic.Uint64
	allocs atomic.Uint64
}

// NewBufferPool creates a pool of size-byte buffers keeping at most
// recycleCap free ones.
func NewBufferPool(size, recycleCap int) *BufferPool {
	return &BufferPool{
		free: make([][]byte, 0, recycleCap),
		size: size,
		keep: recycleCap,
	}
}

// Get returns a full-length buffer, reusing a recycled one when available.
// Contents are unspecified; callers track their own fill level.
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)

	if n := len(bp.free); n > 0 {
		buf := bp.free[n-1]
		bp.free[n-1] = nil
		bp.free = bp.free[:n-1]
		return buf
	}

	bp.allocs.Add(1)
	return make([]byte, bp.size)
}

// Put returns a buffer to the pool. Buffers beyond the recycle cap, and
// foreign buffers of the wrong capacity, are dropped for the GC.
func (bp *BufferPool) Put(buf []byte) {
	bp.puts.Add(1)

	if cap(buf) != bp.size || len(bp.free) >= bp.keep {
		return
	}

	bp.free = append(bp.free, buf[:bp.size])
}

// FreeLen returns the number of recycled buffers currently held.
func (bp *BufferPool) FreeLen() int {
	return len(bp.free)
}

// BufferSize returns the size of buffers vended by the pool.
func (bp *BufferPool) BufferSize() int {
	return bp.size
}

// Stats returns cumulative get/put/allocation counts.
func (bp *BufferPool) Stats() (gets, puts, allocs uint64) {
	return bp.gets.Load(), bp.puts.Load(), bp.allocs.Load()
}
