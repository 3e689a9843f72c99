// Package config loads mevsup settings from defaults, a YAML file and
// MEVSUP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MEVSUP_WORKER_COMMAND
const EnvPrefix = "MEVSUP"

// Config holds application configuration
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Balance  BalanceConfig  `mapstructure:"balance" yaml:"balance"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Restart  RestartConfig  `mapstructure:"restart" yaml:"restart"`
	Shutdown ShutdownConfig `mapstructure:"shutdown" yaml:"shutdown"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
}

// WorkerConfig is the supervised trading worker
type WorkerConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Dir     string   `mapstructure:"dir" yaml:"dir,omitempty"`
	Env     []string `mapstructure:"env" yaml:"env,omitempty"`
}

// BalanceConfig is the external balance query. {credential} in Args is
// replaced with Credential; an empty Credential disables snapshots.
type BalanceConfig struct {
	Command    string        `mapstructure:"command" yaml:"command"`
	Args       []string      `mapstructure:"args" yaml:"args"`
	Credential string        `mapstructure:"credential" yaml:"credential"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SessionConfig controls where session logs go
type SessionConfig struct {
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
}

// RestartConfig is the restart policy
type RestartConfig struct {
	Policy     string        `mapstructure:"policy" yaml:"policy"`
	Delay      time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	ResetAfter time.Duration `mapstructure:"reset_after" yaml:"reset_after"`
}

// ShutdownConfig bounds how long the worker gets after SIGTERM
type ShutdownConfig struct {
	Grace time.Duration `mapstructure:"grace" yaml:"grace"`
}

// LogConfig configures the supervisor's own logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// HistoryConfig is the SQLite session history
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Command: "./target/release/mev-bot",
			Args:    []string{},
		},
		Balance: BalanceConfig{
			Command: "solana",
			Args:    []string{"balance", "--keypair", "{credential}"},
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			LogDir: "logs",
		},
		Restart: RestartConfig{
			Policy:     "fixed",
			Delay:      5 * time.Second,
			MaxDelay:   5 * time.Minute,
			ResetAfter: time.Minute,
		},
		Shutdown: ShutdownConfig{
			Grace: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join("logs", "history.db"),
		},
	}
}

// setDefaults registers every key so env overrides and Unmarshal see them
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("worker.command", cfg.Worker.Command)
	v.SetDefault("worker.args", cfg.Worker.Args)
	v.SetDefault("worker.dir", cfg.Worker.Dir)
	v.SetDefault("worker.env", cfg.Worker.Env)
	v.SetDefault("balance.command", cfg.Balance.Command)
	v.SetDefault("balance.args", cfg.Balance.Args)
	v.SetDefault("balance.credential", cfg.Balance.Credential)
	v.SetDefault("balance.timeout", cfg.Balance.Timeout)
	v.SetDefault("session.log_dir", cfg.Session.LogDir)
	v.SetDefault("restart.policy", cfg.Restart.Policy)
	v.SetDefault("restart.delay", cfg.Restart.Delay)
	v.SetDefault("restart.max_delay", cfg.Restart.MaxDelay)
	v.SetDefault("restart.reset_after", cfg.Restart.ResetAfter)
	v.SetDefault("shutdown.grace", cfg.Shutdown.Grace)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.path", cfg.History.Path)
}

// NewViper returns a viper instance with defaults, environment overrides and
// the config file applied. An explicit path must exist; otherwise
// ./mevsup.yaml and $HOME/.mevsup/config.yaml are tried in that order.
// Callers may bind command-line flags before Decode.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return v, nil
	}

	for _, candidate := range searchPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", candidate, err)
		}
		break
	}
	return v, nil
}

func searchPaths() []string {
	paths := []string{"mevsup.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mevsup", "config.yaml"))
	}
	return paths
}

// Decode unmarshals v into a Config and validates it
func Decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from path (or the default search paths) and environment
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	var errs []error
	switch c.Restart.Policy {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("restart.policy must be fixed or exponential, got %q", c.Restart.Policy))
	}
	if c.Restart.Delay < 0 {
		errs = append(errs, fmt.Errorf("restart.delay must not be negative"))
	}
	if c.Shutdown.Grace <= 0 {
		errs = append(errs, fmt.Errorf("shutdown.grace must be positive"))
	}
	if c.Balance.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("balance.timeout must be positive"))
	}
	if c.Session.LogDir == "" {
		errs = append(errs, fmt.Errorf("session.log_dir must not be empty"))
	}
	return errors.Join(errs...)
}

// ConfigFile returns the path to the config file viper loaded, if any
func ConfigFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
