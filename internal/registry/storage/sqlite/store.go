// Package sqlite stores registry entries in a local SQLite file for
// single-node deployments and development.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/storage/sqlkv"
	txcontext "wasmregistry/pkg/platform/tx"
)

// Schema is applied on Open.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_entries (
	key        BLOB PRIMARY KEY,
	value      BLOB    NOT NULL,
	live_until INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS registry_entries_live_until_idx ON registry_entries (live_until);
`

var dialect = sqlkv.Dialect{
	Select: `SELECT value, live_until FROM registry_entries WHERE key = ?`,
	Upsert: `INSERT INTO registry_entries (key, value, live_until) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, live_until = excluded.live_until`,
	Delete:       `DELETE FROM registry_entries WHERE key = ?`,
	SetLiveUntil: `UPDATE registry_entries SET live_until = ? WHERE key = ?`,
}

type Store struct {
	db  *sql.DB
	seq storage.Sequencer
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func Open(ctx context.Context, path string, seq storage.Sequencer) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, kv storage.KV) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ctx = txcontext.WithTx(ctx, tx)
	if err := fn(ctx, sqlkv.New(tx, dialect, s.seq.Sequence())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Sweep deletes entries that expired before the current ledger.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registry_entries WHERE live_until < ?`, int64(s.seq.Sequence()))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error { return s.db.Close() }
