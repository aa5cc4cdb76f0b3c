package topiclock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisConfig configures a RedisLocker
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string        // default "pacer:topic-lock:"
	TTL         time.Duration // lease length, default 10s
	WaitTimeout time.Duration // how long Lock waits before ErrTopicLocked, default 5s
	RetryDelay  time.Duration // poll interval while waiting, default 25ms
}

// RedisLocker is a Locker shared by every daemon pointing at the same Redis.
// Locks are leases: a crashed holder releases on TTL expiry.
type RedisLocker struct {
	rdb    *goredis.Client
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisLocker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisLockerWithClient(rdb, cfg, logger), nil
}

// NewRedisLockerWithClient wraps an existing client
func NewRedisLockerWithClient(rdb *goredis.Client, cfg RedisConfig, logger *slog.Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pacer:topic-lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 25 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{rdb: rdb, cfg: cfg, logger: logger}
}

// Lock acquires the topic's lease, polling until WaitTimeout elapses
func (l *RedisLocker) Lock(ctx context.Context, topic string) (func(), error) {
	key := l.cfg.KeyPrefix + topic
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.WaitTimeout)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire topic lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTopicLocked, topic)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryDelay):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even when the caller's context is already done.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
				l.logger.Warn("failed to release topic lock", "topic", topic, "error", err)
			}
		})
	}, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
