// Package memory is an in-process storage backend. A single mutex
// serializes invocations; writes are staged and applied on success.
package memory

import (
	"context"
	"sync"

	"wasmregistry/internal/registry/storage"
)

type Store struct {
	mu      sync.Mutex
	entries map[storage.Key]storage.Entry
	seq     storage.Sequencer
}

// New constructs an empty store reading ledger sequence numbers from seq.
func New(seq storage.Sequencer) *Store {
	return &Store{
		entries: make(map[storage.Key]storage.Entry),
		seq:     seq,
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, kv storage.KV) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	ov := storage.NewOverlay(loader{s}, s.seq.Sequence())
	if err := fn(ctx, ov); err != nil {
		return err
	}
	for _, c := range ov.Changes() {
		if c.Deleted {
			delete(s.entries, c.Key)
			continue
		}
		s.entries[c.Key] = c.Entry
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq.Sequence()
	n := 0
	for k, e := range s.entries {
		if !e.Live(seq) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

func (s *Store) Close() error { return nil }

// loader reads committed state; callers hold s.mu.
type loader struct{ s *Store }

func (l loader) Load(_ context.Context, key storage.Key) (storage.Entry, bool, error) {
	e, ok := l.s.entries[key]
	return e, ok, nil
}
