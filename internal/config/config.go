package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the per-workspace directory holding config and the default database.
const Dir = ".escalator"

// FileName is the config file inside Dir.
const FileName = "config.yaml"

// Notification gateways.
const (
	GatewayLog   = "log"
	GatewayRedis = "redis"
)

// Config represents the escalator configuration file.
type Config struct {
	Tenant        string              `yaml:"tenant"` // Default tenant for CLI commands
	Database      DatabaseConfig      `yaml:"database"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Cases         CasesConfig         `yaml:"cases"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Log           LogConfig           `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	BatchSize       int           `yaml:"batch_size"`
	Parallelism     int           `yaml:"parallelism"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`     // Delay after the first failed escalation; doubles per failure
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`
}

type CasesConfig struct {
	DedupeOpenCases bool `yaml:"dedupe_open_cases"`
}

type NotificationsConfig struct {
	Gateway     string        `yaml:"gateway"` // "log" or "redis"
	RedisAddr   string        `yaml:"redis_addr,omitempty"`
	RedisStream string        `yaml:"redis_stream,omitempty"`
	RedisMaxLen int64         `yaml:"redis_max_len"` // Approximate stream cap; 0 leaves it unbounded
	QueueSize   int           `yaml:"queue_size"`
	Workers     int           `yaml:"workers"`
	Timeout     time.Duration `yaml:"timeout"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the notification gateway.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the metrics listener
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Tenant:   "default",
		Database: DatabaseConfig{Path: filepath.Join(Dir, "escalator.db")},
		Scheduler: SchedulerConfig{
			TickInterval:    30 * time.Second,
			BatchSize:       100,
			Parallelism:     4,
			RetryBackoff:    time.Minute,
			MaxRetryBackoff: 30 * time.Minute,
		},
		Cases: CasesConfig{DedupeOpenCases: true},
		Notifications: NotificationsConfig{
			Gateway:     GatewayLog,
			RedisAddr:   "localhost:6379",
			RedisStream: "escalator:notifications",
			RedisMaxLen: 100000,
			QueueSize:   1024,
			Workers:     4,
			Timeout:     5 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				OpenTimeout:  30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Addr: ":9464"},
	}
}

// Path returns the config file location for a workspace directory.
func Path(dir string) string {
	return filepath.Join(dir, Dir, FileName)
}

// LoadConfig reads .escalator/config.yaml from the specified directory.
// Keys missing from the file keep their defaults.
// Returns an error wrapping os.ErrNotExist if there is no config file.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", Path(dir), err)
	}
	return cfg, nil
}

// LoadOrDefault is LoadConfig, falling back to Default when no file exists.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := LoadConfig(dir)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// SaveConfig writes config.yaml to directory
func SaveConfig(dir string, cfg *Config) error {
	cfgDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s dir: %w", Dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks value ranges. It reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Tenant == "" {
		errs = append(errs, errors.New("tenant must not be empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.Scheduler.TickInterval < time.Second {
		errs = append(errs, fmt.Errorf("scheduler.tick_interval must be at least 1s (got %s)", c.Scheduler.TickInterval))
	}
	if c.Scheduler.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("scheduler.batch_size must be positive (got %d)", c.Scheduler.BatchSize))
	}
	if c.Scheduler.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("scheduler.parallelism must be positive (got %d)", c.Scheduler.Parallelism))
	}
	if c.Scheduler.RetryBackoff <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.retry_backoff must be positive (got %s)", c.Scheduler.RetryBackoff))
	}
	if c.Scheduler.MaxRetryBackoff < c.Scheduler.RetryBackoff {
		errs = append(errs, fmt.Errorf("scheduler.max_retry_backoff must be at least retry_backoff (got %s)", c.Scheduler.MaxRetryBackoff))
	}

	n := c.Notifications
	switch n.Gateway {
	case GatewayLog:
	case GatewayRedis:
		if n.RedisAddr == "" {
			errs = append(errs, errors.New("notifications.redis_addr is required for the redis gateway"))
		}
		if n.RedisMaxLen < 0 {
			errs = append(errs, fmt.Errorf("notifications.redis_max_len must not be negative (got %d)", n.RedisMaxLen))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.gateway must be log or redis (got %q)", n.Gateway))
	}
	if n.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("notifications.queue_size must be positive (got %d)", n.QueueSize))
	}
	if n.Workers < 1 {
		errs = append(errs, fmt.Errorf("notifications.workers must be positive (got %d)", n.Workers))
	}
	if n.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("notifications.timeout must be positive (got %s)", n.Timeout))
	}
	if n.Breaker.FailureRatio <= 0 || n.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("notifications.breaker.failure_ratio must be in (0, 1] (got %v)", n.Breaker.FailureRatio))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console (got %q)", c.Log.Format))
	}
	return errors.Join(errs...)
}
