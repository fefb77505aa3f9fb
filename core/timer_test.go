package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/searchktools/burst-server/core/pools"
)

func TestTimerWheel_FiresAtOrAfterDeadline(t *testing.T) {
	base := time.Now()
	w := newTimerWheel(base)

	var fired []pools.Token
	collect := func(tok pools.Token) { fired = append(fired, tok) }

	w.add(pools.Token(7), base.Add(3*time.Second), base)

	w.advance(base.Add(2900*time.Millisecond), collect)
	assert.Empty(t, fired, "must not fire before the deadline")

	w.advance(base.Add(4100*time.Millisecond), collect)
	assert.Equal(t, []pools.Token{7}, fired)

	// A fired entry is gone.
	fired = nil
	w.advance(base.Add(10*time.Second), collect)
	assert.Empty(t, fired)
}

func TestTimerWheel_ManyEntriesOneSlot(t *testing.T) {
	base := time.Now()
	w := newTimerWheel(base)

	for i := 1; i <= 5; i++ {
		w.add(pools.Token(i), base.Add(2*time.Second), base)
	}

	var fired []pools.Token
	w.advance(base.Add(5*time.Second), func(tok pools.Token) { fired = append(fired, tok) })
	assert.Len(t, fired, 5)
}

func TestTimerWheel_HorizonClampFiresEarly(t *testing.T) {
	base := time.Now()
	w := newTimerWheel(base)

	// Beyond-horizon deadlines park at the far edge of the wheel; the
	// firing side re-arms for the remainder after revalidating.
	w.add(pools.Token(1), base.Add(10*time.Minute), base)

	var fired int
	w.advance(base.Add(wheelSlots*time.Second), func(pools.Token) { fired++ })
	assert.Equal(t, 1, fired)
}

func TestTimerWheel_RearmFromFire(t *testing.T) {
	base := time.Now()
	w := newTimerWheel(base)

	w.add(pools.Token(1), base.Add(time.Second), base)

	var fires int
	now := base.Add(2 * time.Second)
	w.advance(now, func(tok pools.Token) {
		fires++
		w.add(tok, now.Add(3*time.Second), now)
	})
	assert.Equal(t, 1, fires)

	w.advance(base.Add(3*time.Second), func(pools.Token) { fires++ })
	assert.Equal(t, 1, fires, "re-armed entry must wait its full interval")

	w.advance(base.Add(7*time.Second), func(pools.Token) { fires++ })
	assert.Equal(t, 2, fires)
}

func TestTimerWheel_StallSweepsEachEntryOnce(t *testing.T) {
	base := time.Now()
	w := newTimerWheel(base)

	for i := 1; i <= 10; i++ {
		w.add(pools.Token(i), base.Add(time.Duration(i)*time.Second), base)
	}

	// A long stall (several wheel revolutions) must deliver every pending
	// entry exactly once.
	counts := map[pools.Token]int{}
	w.advance(base.Add(500*time.Second), func(tok pools.Token) { counts[tok]++ })

	assert.Len(t, counts, 10)
	for tok, n := range counts {
		assert.Equal(t, 1, n, "token %d fired %d times", tok, n)
	}
}
