package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./target/release/mev-bot", cfg.Worker.Command)
	assert.Equal(t, "solana", cfg.Balance.Command)
	assert.Contains(t, cfg.Balance.Args, "{credential}")
	assert.Equal(t, 10*time.Second, cfg.Balance.Timeout)
	assert.Equal(t, "logs", cfg.Session.LogDir)
	assert.Equal(t, "fixed", cfg.Restart.Policy)
	assert.Equal(t, 5*time.Second, cfg.Restart.Delay)
	assert.Equal(t, 10*time.Second, cfg.Shutdown.Grace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.True(t, cfg.History.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assertDefaults(t, cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mevsup.yaml")
	content := `
worker:
  command: /opt/bot/mev-bot
  args: ["--network", "mainnet"]
balance:
  credential: /keys/wallet.json
restart:
  policy: exponential
  delay: 2s
  max_delay: 1m
shutdown:
  grace: 30s
history:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/bot/mev-bot", cfg.Worker.Command)
	assert.Equal(t, []string{"--network", "mainnet"}, cfg.Worker.Args)
	assert.Equal(t, "/keys/wallet.json", cfg.Balance.Credential)
	assert.Equal(t, "solana", cfg.Balance.Command, "unset keys keep defaults")
	assert.Equal(t, "exponential", cfg.Restart.Policy)
	assert.Equal(t, 2*time.Second, cfg.Restart.Delay)
	assert.Equal(t, time.Minute, cfg.Restart.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Grace)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile("mevsup.yaml", []byte("session:\n  log_dir: /var/log/mev\n"), 0644))

	v, err := NewViper("")
	require.NoError(t, err)
	assert.Equal(t, "mevsup.yaml", filepath.Base(ConfigFile(v)))

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/mev", cfg.Session.LogDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("MEVSUP_WORKER_COMMAND", "/usr/local/bin/bot")
	t.Setenv("MEVSUP_RESTART_DELAY", "750ms")
	t.Setenv("MEVSUP_METRICS_ADDR", ":9102")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/bot", cfg.Worker.Command)
	assert.Equal(t, 750*time.Millisecond, cfg.Restart.Delay)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Restart.Policy = "linear" }},
		{"negative delay", func(c *Config) { c.Restart.Delay = -time.Second }},
		{"zero grace", func(c *Config) { c.Shutdown.Grace = 0 }},
		{"zero balance timeout", func(c *Config) { c.Balance.Timeout = 0 }},
		{"empty log dir", func(c *Config) { c.Session.LogDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGenerateYAMLRoundTripsThroughLoad(t *testing.T) {
	out, err := GenerateYAML(Default())
	require.NoError(t, err)
	assert.Contains(t, string(out), "MEVSUP_")
	assert.Contains(t, string(out), "delay: 5s")

	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &parsed))
	assert.Contains(t, parsed, "worker")

	path := filepath.Join(t.TempDir(), "mevsup.yaml")
	require.NoError(t, os.WriteFile(path, out, 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assertDefaults(t, cfg)
}

func assertDefaults(t *testing.T, cfg *Config) {
	t.Helper()
	want := Default()
	assert.Equal(t, want.Worker.Command, cfg.Worker.Command)
	assert.Empty(t, cfg.Worker.Args)
	assert.Equal(t, want.Balance.Command, cfg.Balance.Command)
	assert.Equal(t, want.Balance.Args, cfg.Balance.Args)
	assert.Equal(t, want.Balance.Timeout, cfg.Balance.Timeout)
	assert.Equal(t, want.Session, cfg.Session)
	assert.Equal(t, want.Restart, cfg.Restart)
	assert.Equal(t, want.Shutdown, cfg.Shutdown)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Equal(t, want.Metrics, cfg.Metrics)
	assert.Equal(t, want.History, cfg.History)
}
