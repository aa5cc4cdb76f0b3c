package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pacer/internal/roadmap"
)

// Storage drivers
const (
	StorageLocal    = "local"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Lock drivers
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// LocalConfig holds configuration for the pacer daemon
type LocalConfig struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	Lock      LockConfig      `yaml:"lock"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// SchedulerConfig holds ledger and strategy engine settings
type SchedulerConfig struct {
	HistoryCap    int   `yaml:"history_cap"`
	MinDataPoints int   `yaml:"min_data_points"`
	Seed          int64 `yaml:"seed"` // 0 seeds from the clock
}

// SequencerConfig holds genetic algorithm and run limits
type SequencerConfig struct {
	roadmap.Config `yaml:",inline"`

	Seed               int64 `yaml:"seed"` // 0 seeds from the clock
	MaxConcurrent      int   `yaml:"max_concurrent"`
	MaxQueue           int   `yaml:"max_queue"`
	QueueTimeoutSecs   int   `yaml:"queue_timeout_seconds"`
	TimeoutSecs        int   `yaml:"timeout_seconds"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute"` // HTTP sequencing requests per client
}

// StorageConfig selects where patterns, strategies and roadmaps live
type StorageConfig struct {
	Driver      string `yaml:"driver"` // local, sqlite, postgres
	Path        string `yaml:"path,omitempty"`
	PostgresURL string `yaml:"-"` // Loaded from secrets.yaml
}

// QueueConfig holds RabbitMQ settings
type QueueConfig struct {
	Enabled          bool   `yaml:"enabled"`
	URL              string `yaml:"-"` // Loaded from secrets.yaml
	Consume          bool   `yaml:"consume"`
	Workers          int    `yaml:"workers"`
	Prefetch         int    `yaml:"prefetch"`
	PublishAttempts  int    `yaml:"publish_attempts"`
	FailureThreshold int    `yaml:"failure_threshold"`
}

// LockConfig selects the per-topic writer lock
type LockConfig struct {
	Driver          string `yaml:"driver"` // memory, redis
	RedisAddr       string `yaml:"redis_addr,omitempty"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPassword   string `yaml:"-"` // Loaded from secrets.yaml
	KeyPrefix       string `yaml:"key_prefix,omitempty"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
	WaitTimeoutSecs int    `yaml:"wait_timeout_seconds"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecretsConfig holds connection strings loaded from secrets.yaml
type SecretsConfig struct {
	PostgresURL   string `yaml:"postgres_url,omitempty"`
	AMQPURL       string `yaml:"amqp_url,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
}

// PacerDir returns the path to ~/.pacer
func PacerDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".pacer"), nil
}

// EnsurePacerDir creates ~/.pacer and subdirectories if they don't exist
func EnsurePacerDir() (string, error) {
	dir, err := PacerDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Scheduler: SchedulerConfig{
			HistoryCap:    100,
			MinDataPoints: 3,
		},
		Sequencer: SequencerConfig{
			Config:             roadmap.DefaultConfig(),
			MaxConcurrent:      4,
			MaxQueue:           8,
			QueueTimeoutSecs:   10,
			TimeoutSecs:        30,
			RateLimitPerMinute: 30,
		},
		Storage: StorageConfig{
			Driver: StorageLocal,
		},
		Queue: QueueConfig{
			Enabled:          false,
			Consume:          true,
			Workers:          3,
			Prefetch:         1,
			PublishAttempts:  3,
			FailureThreshold: 5,
		},
		Lock: LockConfig{
			Driver:          LockMemory,
			RedisAddr:       "localhost:6379",
			KeyPrefix:       "pacer:topic-lock:",
			TTLSeconds:      10,
			WaitTimeoutSecs: 5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadLocalConfig loads configuration from ~/.pacer/config.yaml, then
// secrets, then environment overrides
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := PacerDir()
	if err != nil {
		return nil, err
	}

	cfg := DefaultLocalConfig()
	configPath := filepath.Join(dir, "config.yaml")

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets loads connection strings from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	cfg.Storage.PostgresURL = secrets.PostgresURL
	cfg.Queue.URL = secrets.AMQPURL
	cfg.Lock.RedisPassword = secrets.RedisPassword

	return nil
}

// SaveLocalConfig saves configuration to ~/.pacer/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsurePacerDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves connection strings to ~/.pacer/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsurePacerDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}

// StoragePath returns the configured storage path, defaulting under dir
func (c *LocalConfig) StoragePath(dir string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Driver == StorageSQLite {
		return filepath.Join(dir, "data", "pacer.db")
	}
	return filepath.Join(dir, "data")
}
