package core

import (
	"errors"
	"time"
)

// Tuning defaults. The config package mirrors these for its flag, env and
// file layers; core applies them whenever a Config field is zero.
const (
	DefaultAddr          = ":8080"
	DefaultBufferSize    = 64 * 1024
	DefaultMaxConns      = 65536
	DefaultRecycledBufs  = 256
	DefaultMaxHeadBytes  = 64 * 1024
	DefaultBacklog       = 4096
	DefaultBody          = "burst"
	DefaultStatsAddr     = "127.0.0.1:8125"
	DefaultStatsMetric   = "burstd.rps"
	DefaultIdleTimeout   = 30 * time.Second
	DefaultPollInterval  = 5 * time.Second
	DefaultStatsInterval = time.Second
)

// Error definitions
var (
	ErrServerClosed   = errors.New("server closed")
	ErrAlreadyRunning = errors.New("server already running")
)
