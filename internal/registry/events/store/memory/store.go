// Package memory keeps a bounded in-process log of published records.
package memory

import (
	"context"
	"sync"

	"wasmregistry/internal/registry/events"
)

const defaultCapacity = 10_000

type Store struct {
	mu       sync.RWMutex
	records  []events.Record
	capacity int
}

type Option func(*Store)

// WithCapacity bounds how many records are retained.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Publish(_ context.Context, records []events.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append([]events.Record(nil), s.records[over:]...)
	}
	return nil
}

func (s *Store) List(_ context.Context, topic string, limit int) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if topic != "" && s.records[i].Topic != topic {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
