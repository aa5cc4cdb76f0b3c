package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/pacer/internal/config"
	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
	"github.com/felixgeelhaar/pacer/internal/metrics"
	"github.com/felixgeelhaar/pacer/internal/queue"
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
	"github.com/felixgeelhaar/pacer/internal/storage/local"
	"github.com/felixgeelhaar/pacer/internal/storage/postgres"
	"github.com/felixgeelhaar/pacer/internal/storage/sqlite"
	"github.com/felixgeelhaar/pacer/internal/strategy"
	"github.com/felixgeelhaar/pacer/internal/topiclock"
)

// app holds the daemon's wired services and the resources they own
type app struct {
	scheduler *scheduler.Service
	roadmaps  *roadmap.Service
	metrics   *metrics.Metrics
	consumer  *queue.Consumer
	closers   []func() error
	logger    *slog.Logger

	// schemaVersion is the migrated sqlite schema, 0 for other drivers
	schemaVersion int
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	a.stopConsumer()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) stopConsumer() {
	if a.consumer != nil {
		a.consumer.Stop()
		a.consumer = nil
	}
}

// build wires storage, locking, messaging and the services from config
func build(ctx context.Context, cfg *config.LocalConfig, pacerDir string, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewMetrics()
	}

	store, repo, err := a.openStorage(ctx, cfg, pacerDir)
	if err != nil {
		return nil, err
	}

	locker, err := a.openLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		conn     *queue.Connection
		producer *queue.Producer
	)
	if cfg.Queue.Enabled {
		conn, err = queue.NewConnection(cfg.Queue.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		a.onClose(conn.Close)
		producer = queue.NewProducer(conn, queue.ProducerConfig{
			MaxAttempts:      cfg.Queue.PublishAttempts,
			FailureThreshold: cfg.Queue.FailureThreshold,
		}, a.metrics, logger)
	}

	// Scheduler
	engineOpts := []strategy.Option{
		strategy.WithMinDataPoints(cfg.Scheduler.MinDataPoints),
		strategy.WithLogger(logger),
	}
	if cfg.Scheduler.Seed != 0 {
		engineOpts = append(engineOpts, strategy.WithSeed(cfg.Scheduler.Seed))
	}
	schedOpts := []scheduler.Option{
		scheduler.WithStore(store),
		scheduler.WithLocker(locker),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithLogger(logger),
	}
	if producer != nil {
		schedOpts = append(schedOpts, scheduler.WithPublisher(producer))
	}
	a.scheduler = scheduler.NewService(
		ledger.New(ledger.WithHistoryCap(cfg.Scheduler.HistoryCap)),
		strategy.NewEngine(engineOpts...),
		schedOpts...,
	)
	if err := a.scheduler.Load(ctx); err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}

	// Roadmaps
	seqOpts := []roadmap.Option{roadmap.WithLogger(logger)}
	if cfg.Sequencer.Seed != 0 {
		seqOpts = append(seqOpts, roadmap.WithSeed(cfg.Sequencer.Seed))
	}
	seq, err := roadmap.NewSequencer(cfg.Sequencer.Config, seqOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sequencer: %w", err)
	}
	runner := roadmap.NewRunner(seq, roadmap.RunnerConfig{
		MaxConcurrent: cfg.Sequencer.MaxConcurrent,
		MaxQueue:      cfg.Sequencer.MaxQueue,
		QueueTimeout:  time.Duration(cfg.Sequencer.QueueTimeoutSecs) * time.Second,
		Timeout:       time.Duration(cfg.Sequencer.TimeoutSecs) * time.Second,
	}, a.metrics, logger)
	rmOpts := []roadmap.ServiceOption{roadmap.WithServiceLogger(logger)}
	if producer != nil {
		rmOpts = append(rmOpts, roadmap.WithPublisher(producer))
	}
	a.roadmaps = roadmap.NewService(runner, repo, a.scheduler, rmOpts...)

	// Attempts published by other processes
	if conn != nil && cfg.Queue.Consume {
		consumer := queue.NewConsumer(conn, attemptHandler(a.scheduler), queue.ConsumerConfig{
			Workers:  cfg.Queue.Workers,
			Prefetch: cfg.Queue.Prefetch,
		}, a.metrics, logger)
		if err := consumer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start consumer: %w", err)
		}
		a.consumer = consumer
	}

	ready = true
	return a, nil
}

// openStorage selects the pattern store and roadmap repository
func (a *app) openStorage(ctx context.Context, cfg *config.LocalConfig, pacerDir string) (scheduler.Store, roadmap.Repository, error) {
	path := cfg.StoragePath(pacerDir)

	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, path, sqlite.WithLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(db.Close)
		version, err := db.Migrate(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		a.schemaVersion = version
		a.logger.Info("using sqlite storage", "path", path, "schema_version", version)
		return sqlite.NewPatternStore(db), sqlite.NewRoadmapStore(db), nil

	case config.StoragePostgres:
		patterns, err := postgres.Open(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		a.onClose(patterns.Close)

		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.onClose(func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := roadmap.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure roadmap schema: %w", err)
		}
		a.logger.Info("using postgres storage")
		return patterns, repo, nil

	default:
		store, err := local.NewStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("create local store: %w", err)
		}
		a.logger.Info("using local file storage", "path", path)
		return local.NewPatternStore(store), roadmap.NewLocalRepository(store), nil
	}
}

// openLocker selects the per-topic writer lock
func (a *app) openLocker(ctx context.Context, cfg *config.LocalConfig) (topiclock.Locker, error) {
	if cfg.Lock.Driver != config.LockRedis {
		return topiclock.NewKeyedMutex(), nil
	}

	locker, err := topiclock.NewRedisLocker(ctx, topiclock.RedisConfig{
		Addr:        cfg.Lock.RedisAddr,
		Password:    cfg.Lock.RedisPassword,
		DB:          cfg.Lock.RedisDB,
		KeyPrefix:   cfg.Lock.KeyPrefix,
		TTL:         time.Duration(cfg.Lock.TTLSeconds) * time.Second,
		WaitTimeout: time.Duration(cfg.Lock.WaitTimeoutSecs) * time.Second,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.onClose(locker.Close)
	return locker, nil
}

// attemptRecorder is the part of the scheduler the queue consumer drives
type attemptRecorder interface {
	RecordAttempt(ctx context.Context, a ledger.Attempt) (*scheduler.Recommendations, error)
}

// attemptHandler applies queued attempt events to the scheduler
func attemptHandler(rec attemptRecorder) queue.AttemptHandler {
	return func(ctx context.Context, e *domain.AttemptRecordedEvent) error {
		_, err := rec.RecordAttempt(ctx, ledger.Attempt{
			TopicID:       e.TopicID,
			TimeSpent:     e.TimeSpent,
			Success:       e.Success,
			RelatedTopics: e.RelatedTopics,
			Prerequisites: e.Prerequisites,
		})
		return err
	}
}
