//go:build darwin
// +build darwin

package poller

import (
	"golang.org/x/sys/unix"
)

// wakeIdent is the EVFILT_USER ident reserved for Wake.
const wakeIdent = 0

// KqueuePoller is a kqueue-based I/O multiplexer
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates a new Poller (macOS)
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	wake := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kqfd, []unix.Kevent_t{wake}, nil, nil); err != nil {
		unix.Close(kqfd)
		return nil, err
	}

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *KqueuePoller) change(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Add adds a file descriptor to the watch list
func (p *KqueuePoller) Add(fd int) error {
	// Use level-triggered (default) for reliability
	// EV_CLEAR (edge-triggered) can miss events if not handled carefully
	return p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
}

// ModWrite switches fd to write-only readiness.
func (p *KqueuePoller) ModWrite(fd int) error {
	if err := p.change(fd, unix.EVFILT_READ, unix.EV_DISABLE); err != nil {
		return err
	}
	return p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE)
}

// ModRead switches fd back to read-only readiness.
func (p *KqueuePoller) ModRead(fd int) error {
	if err := p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE); err != nil && err != unix.ENOENT {
		return err
	}
	return p.change(fd, unix.EVFILT_READ, unix.EV_ENABLE)
}

// Remove removes a file descriptor from the watch list
func (p *KqueuePoller) Remove(fd int) error {
	rerr := p.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	werr := p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	if rerr != nil && rerr != unix.ENOENT {
		return rerr
	}
	if werr != nil && werr != unix.ENOENT {
		return werr
	}
	return nil
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(events []Event, timeout int) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / 1000),
			Nsec: int64((timeout % 1000) * 1000000),
		}
	}

	if len(p.events) < len(events) {
		p.events = make([]unix.Kevent_t, len(events))
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events[:len(events)], ts)
	if err != nil && err != unix.EINTR {
		return 0, err
	}

	// Handle negative or zero n
	if n <= 0 {
		return 0, nil
	}

	out := 0
	for i := 0; i < n; i++ {
		ev := p.events[i]
		if ev.Filter == unix.EVFILT_USER && ev.Ident == wakeIdent {
			continue
		}

		events[out] = Event{
			FD:       int(ev.Ident),
			Readable: ev.Filter == unix.EVFILT_READ,
			Writable: ev.Filter == unix.EVFILT_WRITE,
			Closed:   ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0,
		}
		out++
	}

	return out, nil
}

// Wake interrupts a concurrent Wait.
func (p *KqueuePoller) Wake() error {
	ev := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}

// SetNonblock sets non-blocking mode
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
