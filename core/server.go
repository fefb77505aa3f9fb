package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/burst-server/core/http"
	"github.com/searchktools/burst-server/core/pools"
	"github.com/searchktools/burst-server/core/stats"
)

// Config controls a Server. The zero value serves defaults on :8080 with
// one worker per core.
type Config struct {
	// Addr is the TCP listen address, host optional.
	Addr string

	// Workers is the number of reactors; each gets its own listening
	// socket, poller and pools. Defaults to GOMAXPROCS.
	Workers int

	// MaxConns caps concurrent connections per worker. Accepts beyond the
	// cap are closed immediately.
	MaxConns int

	// BufferSize is the fixed read-buffer size. A request head must fit in
	// one buffer.
	BufferSize int

	// RecycledBufs caps how many free buffers a worker keeps around.
	RecycledBufs int

	// MaxHeadBytes closes connections whose head exceeds it. Defaults to
	// BufferSize and cannot exceed it.
	MaxHeadBytes int

	// IdleTimeout closes connections with no traffic for this long.
	// Negative disables idle closing.
	IdleTimeout time.Duration

	// PollInterval bounds how long a worker sleeps between poll wakeups.
	PollInterval time.Duration

	// Backlog is the listen(2) backlog per socket.
	Backlog int

	// Body is the fixed response payload, sent for every request. nil
	// means the default body; empty means an empty body.
	Body []byte

	// StatsAddr is the UDP statsd endpoint. Empty disables pushing.
	StatsAddr string

	// StatsMetric names the pushed gauge.
	StatsMetric string

	// StatsInterval is the push period.
	StatsInterval time.Duration

	// Logger receives server logs. nil means silent.
	Logger *zerolog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.RecycledBufs <= 0 {
		cfg.RecycledBufs = DefaultRecycledBufs
	}
	if cfg.MaxHeadBytes <= 0 {
		cfg.MaxHeadBytes = cfg.BufferSize
	}
	switch {
	case cfg.IdleTimeout == 0:
		cfg.IdleTimeout = DefaultIdleTimeout
	case cfg.IdleTimeout < 0:
		cfg.IdleTimeout = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.Body == nil {
		cfg.Body = []byte(DefaultBody)
	}
	if cfg.StatsMetric == "" {
		cfg.StatsMetric = DefaultStatsMetric
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	return cfg
}

func (cfg Config) validate() error {
	if cfg.MaxHeadBytes > cfg.BufferSize {
		return fmt.Errorf("max head bytes %d exceeds buffer size %d", cfg.MaxHeadBytes, cfg.BufferSize)
	}
	if int64(cfg.MaxConns) > math.MaxUint32 {
		return fmt.Errorf("max conns %d exceeds token range", cfg.MaxConns)
	}
	if cfg.PollInterval < time.Millisecond {
		return fmt.Errorf("poll interval %s below 1ms", cfg.PollInterval)
	}
	return nil
}

// Server lifecycle
const (
	stateNew = int32(iota)
	stateRunning
	stateClosed
)

// Server is a fixed-response HTTP server: every request, whatever its
// method or path, gets the same canned 200. All per-connection work happens
// on per-core reactors; the only cross-worker traffic is the sharded
// request counter.
type Server struct {
	cfg Config
	log zerolog.Logger

	counter *stats.Counter
	pusher  *stats.Pusher

	listenFDs []int
	port      int
	workers   []*worker

	respKeep  []byte
	respClose []byte

	state atomic.Int32
}

// New binds the listening sockets and builds the reactors. Anything that
// can fail, fails here, before a single connection is accepted. The server
// holds sockets from this point: call Run to serve or Close to discard.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		counter:   stats.NewCounter(cfg.Workers),
		respKeep:  http.BuildResponse(cfg.Body, true),
		respClose: http.BuildResponse(cfg.Body, false),
	}

	fds, port, err := listenGroup(cfg.Addr, cfg.Workers, cfg.Backlog)
	if err != nil {
		return nil, err
	}
	s.listenFDs = fds
	s.port = port

	s.workers = make([]*worker, cfg.Workers)
	for i := range s.workers {
		w, err := newWorker(i, fds[i], s)
		if err != nil {
			for _, prev := range s.workers[:i] {
				prev.poller.Close()
			}
			closeAll(fds)
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		s.workers[i] = w
	}

	if cfg.StatsAddr != "" {
		p, err := stats.NewPusher(s.counter, cfg.StatsAddr, cfg.StatsMetric, cfg.StatsInterval)
		if err != nil {
			// Serving never depends on the collector.
			log.Warn().Err(err).Str("addr", cfg.StatsAddr).Msg("stats pusher disabled")
		} else {
			s.pusher = p
		}
	}

	return s, nil
}

// Run serves until ctx is canceled or a reactor fails. It can be called
// once.
func (s *Server) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateNew, stateRunning) {
		if s.state.Load() == stateClosed {
			return ErrServerClosed
		}
		return ErrAlreadyRunning
	}
	defer s.state.Store(stateClosed)
	defer closeAll(s.listenFDs)

	s.log.Info().
		Str("addr", s.Addr()).
		Int("workers", s.cfg.Workers).
		Int("max_conns", s.cfg.MaxConns).
		Msg("server listening")

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range s.workers {
		g.Go(func() error {
			return w.run(gctx)
		})
	}

	if s.pusher != nil {
		g.Go(func() error {
			return s.pusher.Run(gctx)
		})
	}

	// Reactors block in the poller; kick them loose on shutdown.
	g.Go(func() error {
		<-gctx.Done()
		for _, w := range s.workers {
			w.poller.Wake()
		}
		return nil
	})

	err := g.Wait()

	// All reactors and the wake goroutine are done; nothing can touch the
	// pollers now.
	for _, w := range s.workers {
		w.poller.Close()
	}

	if s.pusher != nil {
		s.pusher.Close()
	}

	s.log.Info().Msg("server stopped")
	return err
}

// Close releases sockets for a server that was never run. After Run it is a
// no-op; Run cleans up behind itself.
func (s *Server) Close() error {
	if !s.state.CompareAndSwap(stateNew, stateClosed) {
		return nil
	}

	for _, w := range s.workers {
		w.poller.Close()
	}
	closeAll(s.listenFDs)

	if s.pusher != nil {
		s.pusher.Close()
	}

	return nil
}

// Port returns the bound TCP port, useful when Addr requested port 0.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the host:port the server is bound to.
func (s *Server) Addr() string {
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil || host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.port))
}

// Requests returns the number of responses fully written so far.
func (s *Server) Requests() uint64 {
	return s.counter.Total()
}

// Stats is a point-in-time aggregate across all workers.
type Stats struct {
	Requests      uint64        `json:"requests"`
	ActiveConns   uint64        `json:"active_conns"`
	AcceptedConns uint64        `json:"accepted_conns"`
	ClosedConns   uint64        `json:"closed_conns"`
	RejectedConns uint64        `json:"rejected_conns"`
	BufferGets    uint64        `json:"buffer_gets"`
	BufferAllocs  uint64        `json:"buffer_allocs"`
	GC            pools.GCStats `json:"gc"`
}

// Stats aggregates worker counters. Safe to call while serving; the counts
// are individually exact but not mutually consistent.
func (s *Server) Stats() Stats {
	var st Stats
	st.Requests = s.counter.Total()

	for _, w := range s.workers {
		acquired, released, rejected := w.slab.Stats()
		st.AcceptedConns += acquired
		st.ClosedConns += released
		st.RejectedConns += rejected
		st.ActiveConns += acquired - released

		gets, _, allocs := w.bufs.Stats()
		st.BufferGets += gets
		st.BufferAllocs += allocs
	}

	st.GC = pools.ReadGCStats()
	return st
}

// StatsJSON renders Stats for debug endpoints and logs.
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}
