package poller

// Event is one readiness notification.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	// Closed is set when the kernel reports the peer gone (EPOLLHUP/EPOLLERR,
	// EV_EOF). The fd may still have buffered data to drain.
	Closed bool
}

// Poller is the I/O multiplexing interface. A registered fd is watched for
// reads or for writes, never both: connections alternate between the two
// and parking the idle direction keeps level-triggered polling quiet.
type Poller interface {
	// Add registers fd for read readiness.
	Add(fd int) error
	// ModWrite switches fd to write-only readiness.
	ModWrite(fd int) error
	// ModRead switches fd back to read-only readiness.
	ModRead(fd int) error
	// Remove deregisters fd.
	Remove(fd int) error
	// Wait fills events with ready fds and returns the count. timeout is in
	// milliseconds; negative blocks indefinitely.
	Wait(events []Event, timeout int) (int, error)
	// Wake interrupts a concurrent Wait. Safe from any goroutine.
	Wake() error
	Close() error
}
