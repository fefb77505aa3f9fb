package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/burst-server/config"
	"github.com/searchktools/burst-server/core"
	"github.com/searchktools/burst-server/core/pools"
)

// App wires configuration, logging and the server together.
type App struct {
	cfg *config.Config
	log zerolog.Logger
	srv *core.Server
}

// New builds the application: logger, GC tuning, bound sockets. The app
// holds its listening sockets from here on; Run serves them.
func New(cfg *config.Config) (*App, error) {
	log := newLogger(cfg)

	pools.ApplyGCConfig(cfg.GCTuning())

	cc, err := cfg.Core()
	if err != nil {
		return nil, err
	}
	cc.Logger = &log

	srv, err := core.New(cc)
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, log: log, srv: srv}, nil
}

// Server returns the underlying server, for stats readers and tests.
func (a *App) Server() *core.Server { return a.srv }

// Run serves until SIGINT or SIGTERM arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.awaitSignal(cancel)

	return a.RunContext(ctx)
}

// RunContext serves until ctx is canceled.
func (a *App) RunContext(ctx context.Context) error {
	a.log.Info().
		Str("env", a.cfg.Env).
		Str("addr", a.srv.Addr()).
		Msg("burstd starting")

	err := a.srv.Run(ctx)

	a.log.Info().Uint64("served", a.srv.Requests()).Msg("burstd stopped")
	return err
}

func (a *App) awaitSignal(cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()
}

// newLogger writes human-readable logs in development and JSON in
// production.
func newLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stderr
	if !cfg.Production() {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(w).Level(cfg.Level()).With().Timestamp().Logger()
}
