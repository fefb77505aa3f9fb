package core

import "time"

// Connection states
const (
	StateReading = iota
	StateWriting
	StateClosing
)

// Connection is one accepted socket's state. Connections live in a worker's
// slab and are only ever touched by that worker, so none of this is
// synchronized.
//
// While reading, readBuf[:readLen] holds bytes received so far and scanOff
// marks where the head-terminator scan resumes. While writing, out[outOff:]
// is the response remainder still to flush; out aliases one of the server's
// canned responses and is never mutated.
type Connection struct {
	fd    int
	state int

	readBuf []byte
	readLen int
	scanOff int

	out    []byte
	outOff int

	// closeAfter closes the connection once the current response has been
	// flushed. peerEOF records a half-closed peer: buffered requests are
	// still served, but no more bytes will arrive.
	closeAfter bool
	peerEOF    bool

	// writeArmed tracks whether poller interest is currently write-side.
	writeArmed bool

	lastActive time.Time
}

// reset prepares a recycled slot for a freshly accepted socket.
func (c *Connection) reset(fd int, buf []byte, now time.Time) {
	c.fd = fd
	c.state = StateReading
	c.readBuf = buf
	c.readLen = 0
	c.scanOff = 0
	c.out = nil
	c.outOff = 0
	c.closeAfter = false
	c.peerEOF = false
	c.writeArmed = false
	c.lastActive = now
}

// touch records activity for the idle timer.
func (c *Connection) touch(now time.Time) {
	c.lastActive = now
}

// consume drops a served head and moves any pipelined remainder to the
// front of the buffer, preserving arrival order for the next scan.
func (c *Connection) consume(end int) {
	if end < c.readLen {
		copy(c.readBuf, c.readBuf[end:c.readLen])
	}
	c.readLen -= end
	c.scanOff = 0
}

// arm stages a response for writing.
func (c *Connection) arm(resp []byte) {
	c.out = resp
	c.outOff = 0
	c.state = StateWriting
}
