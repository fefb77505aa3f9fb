package stats

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Pusher reports the counter's request rate to a statsd collector. Every
// interval it sends exactly one gauge datagram, `<metric>:<delta>|g`, where
// delta is the number of requests completed since the previous tick.
//
// Pushing is fire-and-forget: the socket is connected once at construction
// and send errors are dropped, so a missing or slow collector never touches
// the serving path.
type Pusher struct {
	counter  *Counter
	conn     net.Conn
	metric   string
	interval time.Duration

	prev uint64
	buf  []byte
}

// NewPusher connects a UDP socket to addr and returns a pusher reporting
// counter deltas under the given metric name.
func NewPusher(counter *Counter, addr, metric string, interval time.Duration) (*Pusher, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}

	return &Pusher{
		counter:  counter,
		conn:     conn,
		metric:   metric,
		interval: interval,
		buf:      make([]byte, 0, len(metric)+24),
	}, nil
}

// Run pushes once per interval until ctx is canceled, then sends a final
// datagram so requests served in the last partial interval still count.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.push()
			return nil
		case <-ticker.C:
			p.push()
		}
	}
}

// push sends one gauge datagram with the delta since the previous push.
func (p *Pusher) push() {
	total := p.counter.Total()
	delta := total - p.prev
	p.prev = total

	p.buf = p.buf[:0]
	p.buf = append(p.buf, p.metric...)
	p.buf = append(p.buf, ':')
	p.buf = strconv.AppendUint(p.buf, delta, 10)
	p.buf = append(p.buf, "|g"...)

	// Errors are intentionally dropped; statsd is best-effort.
	_, _ = p.conn.Write(p.buf)
}

// Close releases the UDP socket.
func (p *Pusher) Close() error {
	return p.conn.Close()
}
