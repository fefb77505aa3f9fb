package core

import (
	"time"

	"github.com/searchktools/burst-server/core/pools"
)

// Idle deadlines only need second-level precision, so a coarse wheel beats
// a heap: arming is an append and a tick drains one slot.
const (
	wheelSlots   = 64
	wheelSlotDur = time.Second
)

// timerWheel schedules idle-timeout checks for one worker. Entries are slab
// tokens; whoever fires them revalidates against the connection's
// lastActive, so entries are never removed on activity and stale tokens for
// closed connections simply fail to resolve.
type timerWheel struct {
	slots [wheelSlots][]pools.Token
	start time.Time
	next  int64
}

func newTimerWheel(now time.Time) *timerWheel {
	return &timerWheel{start: now, next: 1}
}

func (w *timerWheel) tickOf(t time.Time) int64 {
	return int64(t.Sub(w.start) / wheelSlotDur)
}

// add schedules tok to fire at or shortly after deadline. Deadlines beyond
// the wheel horizon fire early; the revalidation on fire re-arms them for
// the remainder.
func (w *timerWheel) add(tok pools.Token, deadline, now time.Time) {
	tick := w.tickOf(deadline) + 1
	if floor := w.tickOf(now) + 1; tick < floor {
		tick = floor
	}
	if ceil := w.tickOf(now) + wheelSlots - 1; tick > ceil {
		tick = ceil
	}

	w.slots[tick%wheelSlots] = append(w.slots[tick%wheelSlots], tok)
}

// advance fires every entry whose tick has passed. fire may re-arm.
func (w *timerWheel) advance(now time.Time, fire func(pools.Token)) {
	nowTick := w.tickOf(now)

	// After a long stall every slot is due at most once.
	if nowTick-w.next >= wheelSlots {
		w.next = nowTick - wheelSlots + 1
	}

	for ; w.next <= nowTick; w.next++ {
		slot := &w.slots[w.next%wheelSlots]
		if len(*slot) == 0 {
			continue
		}

		due := *slot
		*slot = nil
		for _, tok := range due {
			fire(tok)
		}
	}
}
