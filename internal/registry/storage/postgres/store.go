// Package postgres stores registry entries in PostgreSQL. Each invocation
// is one SQL transaction holding a transaction-scoped advisory lock, so
// invocations are serialized across every process sharing the database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/storage/sqlkv"
	txcontext "wasmregistry/pkg/platform/tx"
)

// lockID is the advisory lock taken by every invocation.
const lockID int64 = 0x7761736d72656769

var dialect = sqlkv.Dialect{
	Select: `SELECT value, live_until FROM registry_entries WHERE key = $1`,
	Upsert: `INSERT INTO registry_entries (key, value, live_until) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, live_until = EXCLUDED.live_until`,
	Delete:       `DELETE FROM registry_entries WHERE key = $1`,
	SetLiveUntil: `UPDATE registry_entries SET live_until = $1 WHERE key = $2`,
}

type Store struct {
	db  *sql.DB
	seq storage.Sequencer
}

func New(db *sql.DB, seq storage.Sequencer) *Store {
	return &Store{db: db, seq: seq}
}

// RunInTx exposes the open transaction to fn through ctx so that stores on
// the same database (the event outbox) can join it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, kv storage.KV) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID); err != nil {
		return fmt.Errorf("acquire invocation lock: %w", err)
	}

	ctx = txcontext.WithTx(ctx, tx)
	if err := fn(ctx, sqlkv.New(tx, dialect, s.seq.Sequence())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DB exposes the pool for stores that share it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
