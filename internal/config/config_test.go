package config

import (
	"errors"
	"strings"
	"testing"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"returns default when not set", "TEST_KEY_UNSET", "default", "", "default"},
		{"returns env value when set", "TEST_KEY_SET", "default", "custom", "custom"},
		{"returns empty string env over default", "TEST_KEY_EMPTY", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{"returns default when not set", "TEST_INT_UNSET", 100, "", 100},
		{"parses valid int", "TEST_INT_VALID", 100, "42", 42},
		{"returns default on invalid int", "TEST_INT_INVALID", 100, "not-a-number", 100},
		{"parses negative int", "TEST_INT_NEG", 100, "-5", -5},
		{"parses zero", "TEST_INT_ZERO", 100, "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt(%q, %d) = %d, want %d", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue float64
		envValue     string
		want         float64
	}{
		{"returns default when not set", "TEST_FLOAT_UNSET", 1.5, "", 1.5},
		{"parses valid float", "TEST_FLOAT_VALID", 1.5, "2.5", 2.5},
		{"returns default on invalid float", "TEST_FLOAT_INVALID", 1.5, "not-a-float", 1.5},
		{"parses int as float", "TEST_FLOAT_INT", 1.5, "3", 3.0},
		{"parses negative float", "TEST_FLOAT_NEG", 1.5, "-0.5", -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvFloat(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvFloat(%q, %f) = %f, want %f", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{"returns default when not set", "TEST_BOOL_UNSET", true, "", true},
		{"parses true", "TEST_BOOL_TRUE", false, "true", true},
		{"parses false", "TEST_BOOL_FALSE", true, "false", false},
		{"parses 1 as true", "TEST_BOOL_ONE", false, "1", true},
		{"parses 0 as false", "TEST_BOOL_ZERO", true, "0", false},
		{"returns default on invalid bool", "TEST_BOOL_INVALID", true, "yes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PACER_PORT", "9000")
	t.Setenv("PACER_LOG_LEVEL", "debug")
	t.Setenv("PACER_STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://pacer@db/pacer")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PACER_MAX_GENERATIONS", "40")

	cfg := DefaultLocalConfig()
	applyEnv(cfg)

	if cfg.Daemon.Port != 9000 {
		t.Errorf("Daemon.Port = %d, want 9000", cfg.Daemon.Port)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Errorf("Daemon.LogLevel = %q, want debug", cfg.Daemon.LogLevel)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Storage.PostgresURL != "postgres://pacer@db/pacer" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Queue.Enabled || cfg.Queue.URL != "amqp://guest:guest@mq:5672/" {
		t.Errorf("Queue = %+v; RABBITMQ_URL should enable the queue", cfg.Queue)
	}
	if cfg.Lock.RedisAddr != "redis:6379" {
		t.Errorf("Lock.RedisAddr = %q, want redis:6379", cfg.Lock.RedisAddr)
	}
	if cfg.Sequencer.MaxGenerations != 40 {
		t.Errorf("Sequencer.MaxGenerations = %d, want 40", cfg.Sequencer.MaxGenerations)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv_QueueCanBeDisabled(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://localhost:5672/")
	t.Setenv("PACER_QUEUE_ENABLED", "false")

	cfg := DefaultLocalConfig()
	applyEnv(cfg)

	if cfg.Queue.Enabled {
		t.Error("PACER_QUEUE_ENABLED=false should win over RABBITMQ_URL")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LocalConfig)
		wantErr string
	}{
		{"defaults", func(*LocalConfig) {}, ""},
		{"port zero", func(c *LocalConfig) { c.Daemon.Port = 0 }, "daemon.port"},
		{"port too high", func(c *LocalConfig) { c.Daemon.Port = 70000 }, "daemon.port"},
		{"log level", func(c *LocalConfig) { c.Daemon.LogLevel = "verbose" }, "log_level"},
		{"history cap", func(c *LocalConfig) { c.Scheduler.HistoryCap = 0 }, "history_cap"},
		{"min data points", func(c *LocalConfig) { c.Scheduler.MinDataPoints = -1 }, "min_data_points"},
		{"population", func(c *LocalConfig) { c.Sequencer.PopulationSize = 0 }, "sequencer"},
		{"mutation rate", func(c *LocalConfig) { c.Sequencer.MutationRate = 1.5 }, "sequencer"},
		{"max concurrent", func(c *LocalConfig) { c.Sequencer.MaxConcurrent = 0 }, "max_concurrent"},
		{"storage driver", func(c *LocalConfig) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres without url", func(c *LocalConfig) { c.Storage.Driver = StoragePostgres }, "postgres_url"},
		{"queue without url", func(c *LocalConfig) { c.Queue.Enabled = true }, "amqp_url"},
		{"lock driver", func(c *LocalConfig) { c.Lock.Driver = "etcd" }, "lock.driver"},
		{"redis without addr", func(c *LocalConfig) { c.Lock.Driver = LockRedis; c.Lock.RedisAddr = "" }, "redis_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLocalConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
