//go:build linux
// +build linux

package poller

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &EpollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, 1024),
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int) error {
	ev := unix.EpollEvent{
		// EPOLLIN: Read events
		// EPOLLRDHUP: Detect peer shutdown
		// Use level-triggered (default, no EPOLLET) for reliability
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// ModWrite switches fd to write-only readiness.
func (p *EpollPoller) ModWrite(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLOUT,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// ModRead switches fd back to read-only readiness.
func (p *EpollPoller) ModRead(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events
func (p *EpollPoller) Wait(events []Event, timeout int) (int, error) {
	if len(p.events) < len(events) {
		p.events = make([]unix.EpollEvent, len(events))
	}

	n, err := unix.EpollWait(p.epfd, p.events[:len(events)], timeout)
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
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}

		events[out] = Event{
			FD:       fd,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Closed:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		out++
	}

	return out, nil
}

// Wake interrupts a concurrent Wait.
func (p *EpollPoller) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		// Counter saturated; a wakeup is already pending.
		return nil
	}
	return err
}

func (p *EpollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != nil {
			return
		}
	}
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}

// SetNonblock sets non-blocking mode
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
