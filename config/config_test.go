package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/searchktools/burst-server/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, core.DefaultAddr, cfg.Addr)
	assert.Zero(t, cfg.Workers, "workers should default to one per core")
	assert.Equal(t, core.DefaultBody, cfg.Body)
	assert.Equal(t, core.DefaultStatsAddr, cfg.Stats.Addr, "stats push is on by default")
	assert.Equal(t, core.DefaultStatsMetric, cfg.Stats.Metric)
	assert.Equal(t, core.DefaultIdleTimeout, cfg.IdleTimeout.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "burstd.yaml", `
addr: "127.0.0.1:9090"
workers: 4
buffer_size: 32768
body: "pong"
idle_timeout: "45s"
stats:
  addr: "127.0.0.1:8125"
  metric: "edge.rps"
  interval: "2s"
gc:
  percent: 150
`)

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 32768, cfg.BufferSize)
	assert.Equal(t, "pong", cfg.Body)
	assert.Equal(t, 45*time.Second, cfg.IdleTimeout.Std())
	assert.Equal(t, "127.0.0.1:8125", cfg.Stats.Addr)
	assert.Equal(t, "edge.rps", cfg.Stats.Metric)
	assert.Equal(t, 2*time.Second, cfg.Stats.Interval.Std())
	assert.Equal(t, 150, cfg.GC.Percent)

	// Untouched fields keep their defaults.
	assert.Equal(t, core.DefaultMaxConns, cfg.MaxConns)
}

func TestLoad_FileUnknownKey(t *testing.T) {
	path := writeFile(t, "burstd.yaml", "listen_addr: \":9090\"\n")

	_, err := Load([]string{"-config", path})
	assert.Error(t, err, "typoed keys must not be dropped silently")
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load([]string{"-config", "/nonexistent/burstd.yaml"})
	assert.Error(t, err)
}

func TestLoad_FileEmpty(t *testing.T) {
	path := writeFile(t, "burstd.yaml", "")

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BURSTD_ADDR", "127.0.0.1:7070")
	t.Setenv("BURSTD_WORKERS", "8")
	t.Setenv("BURSTD_IDLE_TIMEOUT", "90s")
	t.Setenv("BURSTD_STATS_ADDR", "127.0.0.1:8135")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Addr)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout.Std())
	assert.Equal(t, "127.0.0.1:8135", cfg.Stats.Addr)
}

func TestLoad_StatsOptOut(t *testing.T) {
	cfg, err := Load([]string{"-stats-addr", ""})
	require.NoError(t, err)
	assert.Empty(t, cfg.Stats.Addr, "an explicit empty address disables pushing")
}

func TestLoad_EnvInvalid(t *testing.T) {
	t.Setenv("BURSTD_WORKERS", "many")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BURSTD_WORKERS")
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "burstd.yaml", `
addr: "127.0.0.1:9191"
workers: 4
`)
	t.Setenv("BURSTD_WORKERS", "8")
	t.Setenv("BURSTD_MAX_CONNS", "1000")

	cfg, err := Load([]string{"-config", path, "-workers", "2"})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers, "flag beats env and file")
	assert.Equal(t, 1000, cfg.MaxConns, "env beats file and default")
	assert.Equal(t, "127.0.0.1:9191", cfg.Addr, "file beats default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"addr without port", func(c *Config) { c.Addr = "8080" }},
		{"addr with bad port", func(c *Config) { c.Addr = "127.0.0.1:http" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"metric with reserved chars", func(c *Config) { c.Stats.Metric = "rps:bad" }},
		{"zero max conns", func(c *Config) { c.MaxConns = 0 }},
		{"head beyond buffer", func(c *Config) { c.BufferSize = 1024; c.MaxHeadBytes = 2048 }},
		{"unknown env", func(c *Config) { c.Env = "staging" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"stats without interval", func(c *Config) { c.Stats.Addr = "127.0.0.1:8125"; c.Stats.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Core(t *testing.T) {
	cfg := Default()
	cfg.Addr = "127.0.0.1:9090"
	cfg.Workers = 2
	cfg.Body = "hello"
	cfg.IdleTimeout = Duration(time.Minute)
	cfg.Stats.Addr = "127.0.0.1:8135"

	cc, err := cfg.Core()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cc.Addr)
	assert.Equal(t, 2, cc.Workers)
	assert.Equal(t, []byte("hello"), cc.Body)
	assert.Equal(t, time.Minute, cc.IdleTimeout)
	assert.Equal(t, "127.0.0.1:8135", cc.StatsAddr)
	assert.Equal(t, core.DefaultStatsMetric, cc.StatsMetric)
}

func TestConfig_CoreBodyFile(t *testing.T) {
	path := writeFile(t, "body.html", "<h1>hi</h1>")

	cfg := Default()
	cfg.BodyFile = path

	cc, err := cfg.Core()
	require.NoError(t, err)
	assert.Equal(t, []byte("<h1>hi</h1>"), cc.Body)

	cfg.BodyFile = filepath.Join(t.TempDir(), "missing.html")
	_, err = cfg.Core()
	assert.Error(t, err)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte(`d: "1m30s"`), &out))
	assert.Equal(t, 90*time.Second, out.D.Std())

	assert.Error(t, yaml.Unmarshal([]byte(`d: "30"`), &out), "unitless durations are ambiguous")

	data, err := yaml.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "2s\n", string(data))
}
