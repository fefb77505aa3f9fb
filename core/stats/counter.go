// Package stats counts served requests and pushes the rate to a statsd
// collector.
package stats

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Shard is a single worker's request counter, padded out to its own cache
// line so neighboring shards never ping-pong a line between cores.
type Shard struct {
	n atomic.Uint64
	_ cpu.CacheLinePad
}

// Incr adds one completed request.
func (s *Shard) Incr() {
	s.n.Add(1)
}

// Add adds n completed requests.
func (s *Shard) Add(n uint64) {
	s.n.Add(n)
}

// Load returns the shard's running total.
func (s *Shard) Load() uint64 {
	return s.n.Load()
}

// Counter is a sharded request counter. Each worker increments its own
// shard; readers sum across shards. Totals are exact because increments are
// atomic, and uncontended because shards are never shared.
type Counter struct {
	shards []Shard
}

// NewCounter creates a counter with one shard per worker.
func NewCounter(workers int) *Counter {
	return &Counter{
		shards: make([]Shard, workers),
	}
}

// Shard returns worker w's private shard.
func (c *Counter) Shard(w int) *Shard {
	return &c.shards[w]
}

// Shards returns the number of shards.
func (c *Counter) Shards() int {
	return len(c.shards)
}

// Total sums every shard. The result is monotonic and, once writers have
// quiesced, exact.
func (c *Counter) Total() uint64 {
	var total uint64
	for i := range c.shards {
		total += c.shards[i].Load()
	}
	return total
}
