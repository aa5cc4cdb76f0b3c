package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// applyEnv overrides file settings from the environment
func applyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("PACER_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("PACER_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("PACER_LOG_LEVEL", cfg.Daemon.LogLevel)

	cfg.Storage.Driver = getEnv("PACER_STORAGE", cfg.Storage.Driver)
	cfg.Storage.Path = getEnv("PACER_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.PostgresURL = getEnv("DATABASE_URL", cfg.Storage.PostgresURL)

	cfg.Queue.URL = getEnv("RABBITMQ_URL", cfg.Queue.URL)
	cfg.Queue.Enabled = getEnvBool("PACER_QUEUE_ENABLED", cfg.Queue.Enabled || os.Getenv("RABBITMQ_URL") != "")

	cfg.Lock.Driver = getEnv("PACER_LOCK", cfg.Lock.Driver)
	cfg.Lock.RedisAddr = getEnv("REDIS_ADDR", cfg.Lock.RedisAddr)
	cfg.Lock.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Lock.RedisPassword)

	cfg.Sequencer.MutationRate = getEnvFloat("PACER_MUTATION_RATE", cfg.Sequencer.MutationRate)
	cfg.Sequencer.MaxGenerations = getEnvInt("PACER_MAX_GENERATIONS", cfg.Sequencer.MaxGenerations)

	cfg.Metrics.Enabled = getEnvBool("PACER_METRICS", cfg.Metrics.Enabled)
}

// Validate rejects settings the daemon cannot run with
func (c *LocalConfig) Validate() error {
	var problems []string

	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		problems = append(problems, fmt.Sprintf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("daemon.log_level %q unknown", c.Daemon.LogLevel))
	}

	if c.Scheduler.HistoryCap <= 0 {
		problems = append(problems, "scheduler.history_cap must be positive")
	}
	if c.Scheduler.MinDataPoints <= 0 {
		problems = append(problems, "scheduler.min_data_points must be positive")
	}

	if err := c.Sequencer.Config.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("sequencer: %v", err))
	}
	if c.Sequencer.MaxConcurrent <= 0 {
		problems = append(problems, "sequencer.max_concurrent must be positive")
	}

	switch c.Storage.Driver {
	case StorageLocal, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			problems = append(problems, "storage.driver postgres needs postgres_url or DATABASE_URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q unknown", c.Storage.Driver))
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		problems = append(problems, "queue enabled without amqp_url or RABBITMQ_URL")
	}

	switch c.Lock.Driver {
	case LockMemory:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			problems = append(problems, "lock.driver redis needs redis_addr")
		}
	default:
		problems = append(problems, fmt.Sprintf("lock.driver %q unknown", c.Lock.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
