package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"wasmregistry/internal/platform/config"
	"wasmregistry/internal/platform/postgres"
	platformredis "wasmregistry/internal/platform/redis"
	"wasmregistry/internal/registry"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/events/publishers/kafka"
	eventmemory "wasmregistry/internal/registry/events/store/memory"
	outbox "wasmregistry/internal/registry/events/store/postgres"
	"wasmregistry/internal/registry/events/worker"
	"wasmregistry/internal/registry/metrics"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/storage/memory"
	pgstore "wasmregistry/internal/registry/storage/postgres"
	redisstore "wasmregistry/internal/registry/storage/redis"
	"wasmregistry/internal/registry/storage/sqlite"
)

type backendDeps struct {
	backend storage.Backend
	seq     storage.Sequencer
	db      *sql.DB
	health  func(context.Context) error
	sweep   func(context.Context) (int64, error)
	closers []func() error
}

func (d *backendDeps) close(log *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func buildBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*backendDeps, error) {
	deps := &backendDeps{seq: storage.ClockSequence{Genesis: cfg.LedgerGenesis, Close: cfg.LedgerClose}}

	switch cfg.Backend {
	case config.BackendMemory:
		store := memory.New(deps.seq)
		deps.backend = store
		deps.sweep = func(context.Context) (int64, error) { return int64(store.Sweep()), nil }

	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.health = client.Health
		deps.backend = redisstore.New(client.Client, deps.seq,
			redisstore.WithPrefix(cfg.Redis.KeyPrefix),
			redisstore.WithLedgerClose(cfg.LedgerClose),
			redisstore.WithLockTimeout(cfg.Redis.LockTimeout),
		)

	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		deps.db = db
		deps.closers = append(deps.closers, db.Close)
		deps.health = db.PingContext
		deps.backend = pgstore.New(db, deps.seq)

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path, deps.seq)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		deps.backend = store
		deps.sweep = store.Sweep

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	log.Info("storage backend ready", "backend", cfg.Backend)
	return deps, nil
}

type eventSinks struct {
	options []registry.Option
	relay   *worker.Relay
	kafka   *kafka.Publisher
	// listen feeds the relay's wake channel until ctx is done.
	listen func(ctx context.Context) error
}

func (s *eventSinks) close() {
	if s.kafka != nil {
		s.kafka.Close()
	}
}

// buildSinks picks where committed events go. With the outbox enabled the
// postgres table doubles as the event log and the relay feeds Kafka;
// otherwise records land in the in-memory log and, when configured, Kafka.
func buildSinks(ctx context.Context, cfg config.Server, deps *backendDeps, m *metrics.Metrics, log *slog.Logger) (*eventSinks, error) {
	sinks := &eventSinks{}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafka.New(cfg.Kafka.Brokers,
			kafka.WithLogger(log),
			kafka.WithMetrics(m),
			kafka.WithTopicPrefix(cfg.Kafka.TopicPrefix),
		)
		if err != nil {
			return nil, err
		}
		if err := pub.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			pub.Close()
			return nil, err
		}
		sinks.kafka = pub
	}

	if cfg.Postgres.Outbox {
		store := outbox.New(deps.db)
		sinks.options = append(sinks.options,
			registry.WithOutbox(store),
			registry.WithEventLog(store),
		)
		wake := make(chan struct{}, 1)
		sinks.listen = func(ctx context.Context) error {
			err := outbox.Listen(ctx, cfg.Postgres.DSN, wake)
			if err != nil && ctx.Err() == nil {
				// The interval still drains the outbox.
				log.WarnContext(ctx, "outbox listener stopped", "error", err)
			}
			return nil
		}
		sinks.relay = worker.NewRelay(store, sinks.kafka,
			worker.WithWake(wake),
			worker.WithInterval(cfg.Postgres.RelayInterval),
			worker.WithBatchSize(cfg.Postgres.RelayBatchSize),
			worker.WithLogger(log),
			worker.WithMetrics(m),
		)
		return sinks, nil
	}

	mem := eventmemory.New()
	fanout := events.Fanout{mem}
	if sinks.kafka != nil {
		fanout = append(fanout, sinks.kafka)
	}
	sinks.options = append(sinks.options,
		registry.WithPublisher(fanout),
		registry.WithEventLog(mem),
	)
	return sinks, nil
}
