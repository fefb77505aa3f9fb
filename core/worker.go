package core

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/burst-server/core/http"
	"github.com/searchktools/burst-server/core/poller"
	"github.com/searchktools/burst-server/core/pools"
	"github.com/searchktools/burst-server/core/stats"
)

const eventBatch = 1024

// worker is one reactor: its own listening socket, poller, connection slab,
// buffer pool, timer wheel and counter shard. Nothing here is shared with
// other workers, so the whole hot path runs without locks.
type worker struct {
	id       int
	listenFD int
	poller   poller.Poller
	slab     *pools.Slab[Connection]
	bufs     *pools.BufferPool
	wheel    *timerWheel
	shard    *stats.Shard
	log      zerolog.Logger

	events   []poller.Event
	fdTokens []pools.Token
	toClose  []pools.Token

	respKeep    []byte
	respClose   []byte
	maxHead     int
	idleTimeout time.Duration
	pollMs      int
}

func newWorker(id, listenFD int, s *Server) (*worker, error) {
	p, err := poller.NewPoller()
	if err != nil {
		return nil, err
	}

	if err := p.Add(listenFD); err != nil {
		p.Close()
		return nil, err
	}

	w := &worker{
		id:          id,
		listenFD:    listenFD,
		poller:      p,
		slab:        pools.NewSlab[Connection](s.cfg.MaxConns),
		bufs:        pools.NewBufferPool(s.cfg.BufferSize, s.cfg.RecycledBufs),
		shard:       s.counter.Shard(id),
		log:         s.log.With().Int("worker", id).Logger(),
		events:      make([]poller.Event, eventBatch),
		fdTokens:    make([]pools.Token, listenFD+64),
		respKeep:    s.respKeep,
		respClose:   s.respClose,
		maxHead:     s.cfg.MaxHeadBytes,
		idleTimeout: s.cfg.IdleTimeout,
		pollMs:      int(s.cfg.PollInterval / time.Millisecond),
	}

	if w.idleTimeout > 0 {
		w.wheel = newTimerWheel(time.Now())
	}

	return w, nil
}

// run is the reactor loop. It owns an OS thread so the kernel keeps waking
// the same thread for this worker's sockets.
func (w *worker) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.shutdown()

	w.log.Debug().Msg("worker started")

	for {
		if ctx.Err() != nil {
			w.log.Debug().Msg("worker stopping")
			return nil
		}

		n, err := w.poller.Wait(w.events, w.pollMs)
		if err != nil {
			w.log.Error().Err(err).Msg("poll failed")
			return err
		}

		now := time.Now()
		for i := 0; i < n; i++ {
			ev := w.events[i]
			if ev.FD == w.listenFD {
				w.accept(now)
				continue
			}
			w.handleEvent(ev, now)
		}

		// Closes are deferred to the end of the batch so an fd freed by one
		// event cannot be reused, and aliased, while later events from the
		// same batch are still pending.
		w.drainClosed()

		if w.wheel != nil {
			w.wheel.advance(now, func(tok pools.Token) {
				w.expire(tok, now)
			})
		}
	}
}

// accept drains the listen socket. A full slab is admission control: the
// connection is closed immediately instead of degrading everyone else.
func (w *worker) accept(now time.Time) {
	for {
		fd, err := acceptConn(w.listenFD)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			default:
				w.log.Warn().Err(err).Msg("accept failed")
				return
			}
		}

		tok, conn, ok := w.slab.Acquire()
		if !ok {
			unix.Close(fd)
			continue
		}

		// TCP_NODELAY: tiny fixed responses must not sit behind Nagle
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		conn.reset(fd, w.bufs.Get(), now)

		if err := w.poller.Add(fd); err != nil {
			w.log.Warn().Err(err).Int("fd", fd).Msg("register failed")
			w.bufs.Put(conn.readBuf)
			w.slab.Release(tok)
			unix.Close(fd)
			continue
		}

		w.setToken(fd, tok)
		if w.wheel != nil {
			w.wheel.add(tok, now.Add(w.idleTimeout), now)
		}
	}
}

// handleEvent dispatches one readiness event to the owning connection.
func (w *worker) handleEvent(ev poller.Event, now time.Time) {
	tok := w.tokenFor(ev.FD)
	conn, ok := w.slab.Get(tok)
	if !ok || conn.fd != ev.FD || conn.state == StateClosing {
		return
	}

	conn.touch(now)

	if ev.Readable && conn.state == StateReading {
		w.fill(tok, conn)
	}

	if conn.state != StateClosing {
		w.advanceConn(tok, conn)
	}

	// Hangup with nothing left to read or write.
	if ev.Closed && conn.state == StateReading && !ev.Readable {
		w.markClose(tok, conn)
	}
}

// fill reads until the socket drains, the buffer fills, or the peer is done.
func (w *worker) fill(tok pools.Token, conn *Connection) {
	for conn.readLen < len(conn.readBuf) {
		n, err := unix.Read(conn.fd, conn.readBuf[conn.readLen:])
		switch {
		case err == unix.EAGAIN:
			return
		case err == unix.EINTR:
			continue
		case err != nil:
			w.markClose(tok, conn)
			return
		case n == 0:
			conn.peerEOF = true
			return
		default:
			conn.readLen += n
		}
	}
}

// advanceConn runs the connection state machine until it blocks: scan for a
// complete head, respond, flush, and repeat for any pipelined requests
// already buffered.
func (w *worker) advanceConn(tok pools.Token, conn *Connection) {
	for {
		switch conn.state {
		case StateReading:
			end := http.HeadEnd(conn.readBuf[:conn.readLen], conn.scanOff)
			if end < 0 {
				conn.scanOff = http.NextScanOffset(conn.readLen)
				if conn.readLen >= w.maxHead || conn.peerEOF {
					w.markClose(tok, conn)
				}
				return
			}
			// The cap applies to complete heads too, not just unterminated
			// ones; end includes the terminator.
			if end > w.maxHead {
				w.markClose(tok, conn)
				return
			}

			keep := http.KeepAlive(conn.readBuf[:end])
			conn.consume(end)
			if keep {
				conn.arm(w.respKeep)
			} else {
				conn.arm(w.respClose)
				conn.closeAfter = true
			}

		case StateWriting:
			done, fatal := w.flush(conn)
			if fatal {
				w.markClose(tok, conn)
				return
			}
			if !done {
				if !conn.writeArmed {
					if w.poller.ModWrite(conn.fd) != nil {
						w.markClose(tok, conn)
						return
					}
					conn.writeArmed = true
				}
				return
			}

			w.shard.Incr()
			conn.out = nil
			conn.outOff = 0

			if conn.writeArmed {
				if w.poller.ModRead(conn.fd) != nil {
					w.markClose(tok, conn)
					return
				}
				conn.writeArmed = false
			}

			if conn.closeAfter {
				w.markClose(tok, conn)
				return
			}
			conn.state = StateReading

		default:
			return
		}
	}
}

// flush writes as much of the pending response as the socket accepts.
func (w *worker) flush(conn *Connection) (done, fatal bool) {
	for conn.outOff < len(conn.out) {
		n, err := unix.Write(conn.fd, conn.out[conn.outOff:])
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return false, false
			case unix.EINTR:
				continue
			default:
				return false, true
			}
		}
		conn.outOff += n
	}

	return true, false
}

// expire fires when a wheel entry comes due. The deadline is recomputed
// from lastActive, so entries armed at accept time never kill a connection
// that has been active since.
func (w *worker) expire(tok pools.Token, now time.Time) {
	conn, ok := w.slab.Get(tok)
	if !ok || conn.state == StateClosing {
		return
	}

	deadline := conn.lastActive.Add(w.idleTimeout)
	if deadline.After(now) {
		w.wheel.add(tok, deadline, now)
		return
	}

	w.log.Debug().Int("fd", conn.fd).Msg("idle timeout")
	w.closeToken(tok)
}

// markClose queues a connection for the end-of-batch close sweep.
func (w *worker) markClose(tok pools.Token, conn *Connection) {
	if conn.state == StateClosing {
		return
	}
	conn.state = StateClosing
	w.toClose = append(w.toClose, tok)
}

func (w *worker) drainClosed() {
	for _, tok := range w.toClose {
		w.closeToken(tok)
	}
	w.toClose = w.toClose[:0]
}

// closeToken tears a connection down. Order matters: deregister first so no
// further events arrive, recycle the buffer, close the fd, and only then
// free the slot so the token stays valid throughout.
func (w *worker) closeToken(tok pools.Token) {
	conn, ok := w.slab.Get(tok)
	if !ok {
		return
	}

	fd := conn.fd

	w.poller.Remove(fd)

	if conn.readBuf != nil {
		w.bufs.Put(conn.readBuf)
		conn.readBuf = nil
	}

	unix.Close(fd)
	w.clearToken(fd)
	w.slab.Release(tok)
}

// shutdown closes every live connection. The poller stays open; it is
// closed by the server once no goroutine can wake it anymore.
func (w *worker) shutdown() {
	for fd, tok := range w.fdTokens {
		if tok == pools.NoToken {
			continue
		}
		if conn, ok := w.slab.Get(tok); ok && conn.fd == fd {
			w.closeToken(tok)
		}
	}

	w.log.Debug().Msg("worker stopped")
}

func (w *worker) setToken(fd int, tok pools.Token) {
	if fd >= len(w.fdTokens) {
		grown := make([]pools.Token, fd+fd/2+1)
		copy(grown, w.fdTokens)
		w.fdTokens = grown
	}
	w.fdTokens[fd] = tok
}

func (w *worker) tokenFor(fd int) pools.Token {
	if fd < 0 || fd >= len(w.fdTokens) {
		return pools.NoToken
	}
	return w.fdTokens[fd]
}

func (w *worker) clearToken(fd int) {
	if fd >= 0 && fd < len(w.fdTokens) {
		w.fdTokens[fd] = pools.NoToken
	}
}
