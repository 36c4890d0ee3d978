// Package redis stores registry entries in Redis. Writes are staged in an
// overlay and flushed in one MULTI/EXEC; a lock key serializes invocations
// across processes. Keys read during an invocation are WATCHed, so a commit
// made after the lock expired fails instead of overwriting a newer write.
//
// Values are stored as a 4-byte big-endian live-until ledger followed by the
// payload. Key expiry is set from the same ledger so Redis reclaims entries
// once they can no longer be read.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"wasmregistry/internal/registry/storage"
	"wasmregistry/pkg/platform/sentinel"
)

const (
	defaultPrefix      = "registry:"
	defaultLockTimeout = 10 * time.Second
	lockRetry          = 20 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Store struct {
	client      *redis.Client
	seq         storage.Sequencer
	prefix      string
	ledger      time.Duration
	lockTimeout time.Duration

	// local serializes invocations from this process before touching the lock key.
	local sync.Mutex
}

type Option func(*Store)

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLedgerClose sets the wall-clock duration of one ledger.
func WithLedgerClose(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ledger = d
		}
	}
}

// WithLockTimeout bounds both lock acquisition and lock lifetime.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func New(client *redis.Client, seq storage.Sequencer, opts ...Option) *Store {
	s := &Store{
		client:      client,
		seq:         seq,
		prefix:      defaultPrefix,
		ledger:      storage.DefaultLedgerClose,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, kv storage.KV) error) error {
	s.local.Lock()
	defer s.local.Unlock()

	token, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(token)

	// Every key the invocation reads is WATCHed along with the lock key, so
	// the commit fails if the lock expired and another process wrote in
	// between.
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		seq := s.seq.Sequence()
		ov := storage.NewOverlay(loader{s: s, tx: tx}, seq)
		if err := fn(ctx, ov); err != nil {
			return err
		}
		changes := ov.Changes()
		if len(changes) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, c := range changes {
				k := s.key(c.Key)
				if c.Deleted {
					pipe.Del(ctx, k)
					continue
				}
				pipe.Set(ctx, k, encodeEntry(c.Entry), s.expiry(c.Entry.LiveUntil, seq))
			}
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("commit %d changes: lock lost to a concurrent invocation: %w", len(changes), sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("commit %d changes: %w: %w", len(changes), sentinel.ErrUnavailable, err)
		}
		return nil
	}, s.lockKey())
	return err
}

func (s *Store) Close() error { return nil }

func (s *Store) key(k storage.Key) string { return s.prefix + string(k) }

func (s *Store) lockKey() string { return s.prefix + "lock" }

// expiry converts a live-until ledger into a key TTL. The entry stays
// readable through its live-until ledger.
func (s *Store) expiry(liveUntil, seq uint32) time.Duration {
	return time.Duration(liveUntil-seq+1) * s.ledger
}

func (s *Store) acquire(ctx context.Context) (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	token := hex.EncodeToString(b[:])

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, s.lockKey(), token, s.lockTimeout).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("acquire lock: %w: %w", sentinel.ErrUnavailable, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Store) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, s.client, []string{s.lockKey()}, token).Err()
}

func encodeEntry(e storage.Entry) []byte {
	b := make([]byte, 4+len(e.Value))
	binary.BigEndian.PutUint32(b, e.LiveUntil)
	copy(b[4:], e.Value)
	return b
}

func decodeEntry(b []byte) (storage.Entry, error) {
	if len(b) < 4 {
		return storage.Entry{}, fmt.Errorf("entry of %d bytes: %w", len(b), sentinel.ErrInvalidState)
	}
	return storage.Entry{LiveUntil: binary.BigEndian.Uint32(b), Value: b[4:]}, nil
}

type loader struct {
	s  *Store
	tx *redis.Tx
}

func (l loader) Load(ctx context.Context, key storage.Key) (storage.Entry, bool, error) {
	k := l.s.key(key)
	if err := l.tx.Watch(ctx, k).Err(); err != nil {
		return storage.Entry{}, false, fmt.Errorf("watch: %w: %w", sentinel.ErrUnavailable, err)
	}
	raw, err := l.tx.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.Entry{}, false, nil
	}
	if err != nil {
		return storage.Entry{}, false, fmt.Errorf("load: %w: %w", sentinel.ErrUnavailable, err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return storage.Entry{}, false, err
	}
	return e, true, nil
}
