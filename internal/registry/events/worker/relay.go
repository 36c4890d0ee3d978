// Package worker relays outbox rows to the event publisher.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/metrics"
)

// Outbox is the slice of the outbox store the relay needs.
type Outbox interface {
	Drain(ctx context.Context, limit int, fn func(ctx context.Context, records []events.Record) error) (int, error)
	Backlog(ctx context.Context) (int, error)
}

// Relay drains the outbox on a fixed interval, and early whenever its wake
// channel fires. A failed delivery leaves the
// rows in place for the next pass, so delivery is at least once.
type Relay struct {
	outbox    Outbox
	publisher events.Publisher
	interval  time.Duration
	wake      <-chan struct{}
	batch     int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithWake starts a pass whenever ch receives, e.g. from an outbox
// LISTEN/NOTIFY listener.
func WithWake(ch <-chan struct{}) Option {
	return func(r *Relay) { r.wake = ch }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(outbox Outbox, publisher events.Publisher, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  time.Second,
		batch:     100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
		if _, err := r.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
	}
}

// Pass drains full batches until the outbox is empty and returns how many
// records were delivered.
func (r *Relay) Pass(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.outbox.Drain(ctx, r.batch, r.publisher.Publish)
		total += n
		if err != nil {
			r.metrics.IncrementPublishFailure("outbox")
			return total, err
		}
		if n < r.batch {
			break
		}
	}
	if backlog, err := r.outbox.Backlog(ctx); err == nil {
		r.metrics.SetOutboxBacklog(backlog)
	}
	return total, nil
}
