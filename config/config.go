package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/searchktools/burst-server/core"
	"github.com/searchktools/burst-server/core/pools"
)

const envPrefix = "BURSTD_"

// Duration is a time.Duration that reads YAML strings like "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full daemon configuration. Load merges defaults, an
// optional YAML file, BURSTD_* environment variables and flags, in that
// order of increasing precedence.
type Config struct {
	Addr         string `yaml:"addr"`
	Workers      int    `yaml:"workers"`
	MaxConns     int    `yaml:"max_conns"`
	BufferSize   int    `yaml:"buffer_size"`
	RecycledBufs int    `yaml:"recycled_bufs"`
	MaxHeadBytes int    `yaml:"max_head_bytes"`
	Backlog      int    `yaml:"backlog"`

	// Body is the fixed payload every response carries. BodyFile, when
	// set, replaces it with the file contents.
	Body     string `yaml:"body"`
	BodyFile string `yaml:"body_file"`

	IdleTimeout  Duration `yaml:"idle_timeout"`
	PollInterval Duration `yaml:"poll_interval"`

	Stats StatsConfig `yaml:"stats"`
	GC    GCConfig    `yaml:"gc"`

	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

// StatsConfig controls the statsd gauge pusher.
type StatsConfig struct {
	Addr     string   `yaml:"addr"`
	Metric   string   `yaml:"metric"`
	Interval Duration `yaml:"interval"`
}

// GCConfig tunes the runtime garbage collector.
type GCConfig struct {
	Percent     int   `yaml:"percent"`
	MemoryLimit int64 `yaml:"memory_limit"`
}

// Default returns the configuration the daemon runs with when nothing is
// overridden.
func Default() *Config {
	return &Config{
		Addr:         core.DefaultAddr,
		Workers:      0, // one per core
		MaxConns:     core.DefaultMaxConns,
		BufferSize:   core.DefaultBufferSize,
		RecycledBufs: core.DefaultRecycledBufs,
		Backlog:      core.DefaultBacklog,
		Body:         core.DefaultBody,
		IdleTimeout:  Duration(core.DefaultIdleTimeout),
		PollInterval: Duration(core.DefaultPollInterval),
		Stats: StatsConfig{
			Addr:     core.DefaultStatsAddr,
			Metric:   core.DefaultStatsMetric,
			Interval: Duration(core.DefaultStatsInterval),
		},
		GC:       GCConfig{Percent: pools.DefaultGCConfig().GOGC},
		Env:      "development",
		LogLevel: "info",
	}
}

// Load builds the configuration from args (excluding the program name).
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("burstd", flag.ContinueOnError)
	var (
		file = fs.String("config", "", "YAML config file")

		addr          = fs.String("addr", cfg.Addr, "TCP listen address")
		workers       = fs.Int("workers", cfg.Workers, "reactor count (0 = one per core)")
		maxConns      = fs.Int("max-conns", cfg.MaxConns, "connection slots per reactor")
		bufferSize    = fs.Int("buffer-size", cfg.BufferSize, "read buffer size (bytes)")
		body          = fs.String("body", cfg.Body, "response body")
		bodyFile      = fs.String("body-file", cfg.BodyFile, "file holding the response body")
		idleTimeout   = fs.Duration("idle-timeout", cfg.IdleTimeout.Std(), "close idle connections after this long (negative disables)")
		statsAddr     = fs.String("stats-addr", cfg.Stats.Addr, "statsd UDP address (empty disables)")
		statsMetric   = fs.String("stats-metric", cfg.Stats.Metric, "statsd gauge name")
		statsInterval = fs.Duration("stats-interval", cfg.Stats.Interval.Std(), "statsd push interval")
		envName       = fs.String("env", cfg.Env, "environment (development/production)")
		logLevel      = fs.String("log-level", cfg.LogLevel, "log level (trace/debug/info/warn/error)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *file != "" {
		if err := cfg.loadFile(*file); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	// Flags given on the command line win over file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "workers":
			cfg.Workers = *workers
		case "max-conns":
			cfg.MaxConns = *maxConns
		case "buffer-size":
			cfg.BufferSize = *bufferSize
		case "body":
			cfg.Body = *body
		case "body-file":
			cfg.BodyFile = *bodyFile
		case "idle-timeout":
			cfg.IdleTimeout = Duration(*idleTimeout)
		case "stats-addr":
			cfg.Stats.Addr = *statsAddr
		case "stats-metric":
			cfg.Stats.Metric = *statsMetric
		case "stats-interval":
			cfg.Stats.Interval = Duration(*statsInterval)
		case "env":
			cfg.Env = *envName
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envReader applies BURSTD_* variables with a sticky first error.
type envReader struct {
	err error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func (r *envReader) num(key string, dst *int) {
	if r.err != nil {
		return
	}
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = n
}

func (r *envReader) num64(key string, dst *int64) {
	if r.err != nil {
		return
	}
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = n
}

func (r *envReader) dur(key string, dst *Duration) {
	if r.err != nil {
		return
	}
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = Duration(d)
}

func (c *Config) loadEnv() error {
	var r envReader

	r.str("ADDR", &c.Addr)
	r.num("WORKERS", &c.Workers)
	r.num("MAX_CONNS", &c.MaxConns)
	r.num("BUFFER_SIZE", &c.BufferSize)
	r.num("RECYCLED_BUFS", &c.RecycledBufs)
	r.num("MAX_HEAD_BYTES", &c.MaxHeadBytes)
	r.num("BACKLOG", &c.Backlog)
	r.str("BODY", &c.Body)
	r.str("BODY_FILE", &c.BodyFile)
	r.dur("IDLE_TIMEOUT", &c.IdleTimeout)
	r.dur("POLL_INTERVAL", &c.PollInterval)
	r.str("STATS_ADDR", &c.Stats.Addr)
	r.str("STATS_METRIC", &c.Stats.Metric)
	r.dur("STATS_INTERVAL", &c.Stats.Interval)
	r.num("GC_PERCENT", &c.GC.Percent)
	r.num64("GC_MEMORY_LIMIT", &c.GC.MemoryLimit)
	r.str("ENV", &c.Env)
	r.str("LOG_LEVEL", &c.LogLevel)

	return r.err
}

// Validate rejects values the server could not start with. Zero values that
// mean "use the default" pass.
func (c *Config) Validate() error {
	_, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return fmt.Errorf("addr %q: %w", c.Addr, err)
	}
	if port, err := strconv.Atoi(portStr); err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("addr %q: invalid port %q", c.Addr, portStr)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d is negative", c.Workers)
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max_conns %d must be positive", c.MaxConns)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size %d must be positive", c.BufferSize)
	}
	if c.MaxHeadBytes < 0 || c.MaxHeadBytes > c.BufferSize {
		return fmt.Errorf("max_head_bytes %d must be between 0 and buffer_size %d", c.MaxHeadBytes, c.BufferSize)
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("env %q must be development or production", c.Env)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	if c.Stats.Addr != "" {
		if c.Stats.Metric == "" {
			return fmt.Errorf("stats.metric must be set when stats.addr is")
		}
		if c.Stats.Interval <= 0 {
			return fmt.Errorf("stats.interval %s must be positive", c.Stats.Interval.Std())
		}
	}
	// The statsd line format reserves these.
	if strings.ContainsAny(c.Stats.Metric, ":|") {
		return fmt.Errorf("stats.metric %q must not contain ':' or '|'", c.Stats.Metric)
	}
	return nil
}

// Production reports whether the daemon runs with production logging.
func (c *Config) Production() bool { return c.Env == "production" }

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Core maps the configuration onto the server runtime. It reads BodyFile
// if one is set.
func (c *Config) Core() (core.Config, error) {
	body := []byte(c.Body)
	if c.BodyFile != "" {
		data, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return core.Config{}, fmt.Errorf("read body file: %w", err)
		}
		body = data
	}

	return core.Config{
		Addr:          c.Addr,
		Workers:       c.Workers,
		MaxConns:      c.MaxConns,
		BufferSize:    c.BufferSize,
		RecycledBufs:  c.RecycledBufs,
		MaxHeadBytes:  c.MaxHeadBytes,
		IdleTimeout:   c.IdleTimeout.Std(),
		PollInterval:  c.PollInterval.Std(),
		Backlog:       c.Backlog,
		Body:          body,
		StatsAddr:     c.Stats.Addr,
		StatsMetric:   c.Stats.Metric,
		StatsInterval: c.Stats.Interval.Std(),
	}, nil
}

// GCTuning returns the garbage collector settings for pools.ApplyGCConfig.
func (c *Config) GCTuning() pools.GCConfig {
	return pools.GCConfig{GOGC: c.GC.Percent, MemoryLimit: c.GC.MemoryLimit}
}
