// Package kafka publishes registry events to Kafka, one topic per event
// kind.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/metrics"
)

const sinkName = "kafka"

type Publisher struct {
	client  *kgo.Client
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithTopicPrefix prepends prefix to every event topic.
func WithTopicPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// New connects a producer to brokers.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	p := &Publisher{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TopicName maps an event topic to its Kafka topic.
func (p *Publisher) TopicName(topic string) string { return p.prefix + topic }

// EnsureTopics creates the event topics, tolerating ones that already exist.
func (p *Publisher) EnsureTopics(ctx context.Context, partitions int32, replication int16) error {
	topics := make([]string, 0, len(events.Topics))
	for _, t := range events.Topics {
		topics = append(topics, p.TopicName(t))
	}
	resp, err := kadm.NewClient(p.client).CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish produces records synchronously and returns the first failure.
func (p *Publisher) Publish(ctx context.Context, records []events.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		rec := &kgo.Record{
			Topic: p.TopicName(r.Topic),
			Key:   []byte(r.ID.String()),
			Value: value,
		}
		if r.Channel != "" {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: "channel", Value: []byte(r.Channel)})
		}
		batch = append(batch, rec)
	}
	if err := p.client.ProduceSync(ctx, batch...).FirstErr(); err != nil {
		p.metrics.IncrementPublishFailure(sinkName)
		p.logger.ErrorContext(ctx, "kafka publish failed", "records", len(records), "error", err)
		return fmt.Errorf("produce: %w", err)
	}
	for _, r := range records {
		p.metrics.IncrementPublished(r.Topic, sinkName)
	}
	return nil
}

// Client exposes the underlying client, e.g. for consumers in tests.
func (p *Publisher) Client() *kgo.Client { return p.client }

func (p *Publisher) Close() { p.client.Close() }
