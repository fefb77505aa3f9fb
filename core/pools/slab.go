package pools

import "sync/atomic"

// Token identifies a live slab entry. The low 32 bits carry the slot index,
// the high 32 bits the slot generation at acquisition time. Generations
// start at 1, so the zero Token never resolves.
type Token uint64

// NoToken is the zero Token. It never resolves to an entry.
const NoToken Token = 0

func makeToken(idx, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(idx))
}

// Index returns the slot index encoded in the token.
func (t Token) Index() uint32 {
	return uint32(t)
}

// Generation returns the slot generation encoded in the token.
func (t Token) Generation() uint32 {
	return uint32(t >> 32)
}

// Slab is a fixed-capacity arena of T addressed through generation-checked
// tokens. Slots are handed out from a free list, entry pointers stay valid
// until the entry is released, and a token held past release stops
// resolving instead of aliasing the slot's next occupant.
//
// The backing array is reserved up front so entry pointers never move;
// slots are initialized lazily as the live count first grows. Capacity must
// fit in 32 bits. Not safe for concurrent use.
type Slab[T any] struct {
	slots    []T
	gens     []uint32
	free     []uint32
	capacity int

	acquires atomic.Uint64
	releases atomic.Uint64
	rejects  atomic.Uint64
}

// NewSlab creates a slab holding at most capacity entries.
func NewSlab[T any](capacity int) *Slab[T] {
	return &Slab[T]{
		slots:    make([]T, 0, capacity),
		gens:     make([]uint32, 0, capacity),
		free:     make([]uint32, 0, 64),
		capacity: capacity,
	}
}

// Acquire reserves a slot and returns its token and entry pointer. It
// returns false when the slab is at capacity.
func (s *Slab[T]) Acquire() (Token, *T, bool) {
	var idx uint32

	switch {
	case len(s.free) > 0:
		idx = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
	case len(s.slots) < s.capacity:
		var zero T
		s.slots = append(s.slots, zero)
		s.gens = append(s.gens, 1)
		idx = uint32(len(s.slots) - 1)
	default:
		s.rejects.Add(1)
		return NoToken, nil, false
	}

	s.acquires.Add(1)
	return makeToken(idx, s.gens[idx]), &s.slots[idx], true
}

// Get resolves a token to its entry. It returns false for stale tokens,
// released slots and NoToken.
func (s *Slab[T]) Get(tok Token) (*T, bool) {
	idx := tok.Index()
	if int(idx) >= len(s.slots) || s.gens[idx] != tok.Generation() {
		return nil, false
	}

	return &s.slots[idx], true
}

// Release frees the entry behind tok and invalidates every copy of it.
// Releasing a stale token is a no-op and returns false.
func (s *Slab[T]) Release(tok Token) bool {
	idx := tok.Index()
	if int(idx) >= len(s.slots) || s.gens[idx] != tok.Generation() {
		return false
	}

	var zero T
	s.slots[idx] = zero

	s.gens[idx]++
	if s.gens[idx] == 0 {
		// Wrapped; generation 0 is reserved for NoToken.
		s.gens[idx] = 1
	}

	s.free = append(s.free, idx)
	s.releases.Add(1)
	return true
}

// Len returns the number of live entries.
func (s *Slab[T]) Len() int {
	return len(s.slots) - len(s.free)
}

// Cap returns the fixed capacity.
func (s *Slab[T]) Cap() int {
	return s.capacity
}

// Stats returns cumulative acquire/release/capacity-rejection counts.
func (s *Slab[T]) Stats() (acquires, releases, rejects uint64) {
	return s.acquires.Load(), s.releases.Load(), s.rejects.Load()
}
