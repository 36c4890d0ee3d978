// Package storagetest holds a behavioural suite every storage backend
// must pass.
package storagetest

import (
	"context"
	"errors"

	"github.com/stretchr/testify/suite"

	"wasmregistry/internal/registry/storage"
)

// Factory returns a fresh, empty backend reading sequence numbers from seq.
type Factory func(seq storage.Sequencer) storage.Backend

// Suite exercises commit, rollback, lifetimes and TTL extension.
type Suite struct {
	suite.Suite
	New Factory

	seq     *storage.ManualSequence
	backend storage.Backend
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.seq = storage.NewManualSequence(1_000)
	s.backend = s.New(s.seq)
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.backend.Close())
}

func (s *Suite) read(key storage.Key) ([]byte, bool) {
	var (
		val []byte
		ok  bool
	)
	s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
		var err error
		val, ok, err = kv.Get(ctx, key)
		return err
	}))
	return val, ok
}

func (s *Suite) write(key storage.Key, val string) {
	s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
		return kv.Set(ctx, key, []byte(val))
	}))
}

func (s *Suite) TestCommitIsAtomic() {
	a := storage.EncodeKey(storage.NamespaceWasm, []byte("a"))
	b := storage.EncodeKey(storage.NamespaceContract, []byte("a"))

	s.Run("rollback discards every write", func() {
		boom := errors.New("boom")
		err := s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
			s.Require().NoError(kv.Set(ctx, a, []byte("1")))
			s.Require().NoError(kv.Set(ctx, b, []byte("2")))
			return boom
		})
		s.Require().ErrorIs(err, boom)
		_, ok := s.read(a)
		s.False(ok)
		_, ok = s.read(b)
		s.False(ok)
	})

	s.Run("commit publishes every write", func() {
		s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
			if err := kv.Set(ctx, a, []byte("1")); err != nil {
				return err
			}
			got, ok, err := kv.Get(ctx, a)
			s.Require().NoError(err)
			s.Require().True(ok)
			s.Equal("1", string(got))
			return kv.Set(ctx, b, []byte("2"))
		}))
		got, ok := s.read(a)
		s.Require().True(ok)
		s.Equal("1", string(got))
		got, ok = s.read(b)
		s.Require().True(ok)
		s.Equal("2", string(got), "namespaces do not collide")
	})

	s.Run("overwrite and delete", func() {
		s.write(a, "3")
		got, _ := s.read(a)
		s.Equal("3", string(got))

		s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
			return kv.Delete(ctx, a)
		}))
		_, ok := s.read(a)
		s.False(ok)
	})
}

func (s *Suite) TestLifetimes() {
	key := storage.EncodeKey(storage.NamespaceHash, []byte("ttl"))
	s.write(key, "x")

	s.seq.Advance(storage.MinPersistentTTL - 1)
	_, ok := s.read(key)
	s.True(ok)

	s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
		return kv.ExtendTTL(ctx, key, storage.MaxBump, storage.MaxBump)
	}))
	s.seq.Advance(storage.MaxBump - 1)
	_, ok = s.read(key)
	s.True(ok, "extended entries outlive their original lifetime")

	s.seq.Advance(2)
	_, ok = s.read(key)
	s.False(ok, "expired entries read as absent")

	s.Run("rewriting an expired key starts a new lifetime", func() {
		s.write(key, "y")
		got, ok := s.read(key)
		s.Require().True(ok)
		s.Equal("y", string(got))
	})
}

func (s *Suite) TestHas() {
	key := storage.EncodeKey(storage.NamespaceConfig, []byte("roles"))
	s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
		ok, err := kv.Has(ctx, key)
		s.Require().NoError(err)
		s.False(ok)
		return kv.Set(ctx, key, []byte{0})
	}))
	s.Require().NoError(s.backend.RunInTx(s.ctx, func(ctx context.Context, kv storage.KV) error {
		ok, err := kv.Has(ctx, key)
		s.Require().NoError(err)
		s.True(ok)
		return nil
	}))
}
