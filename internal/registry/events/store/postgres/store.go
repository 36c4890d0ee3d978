// Package postgres writes registry events to an outbox table in the same
// transaction as the ledger change, and drains it for the relay worker.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"wasmregistry/internal/registry/events"
	txcontext "wasmregistry/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// NotifyChannel is the LISTEN/NOTIFY channel Append signals on.
const NotifyChannel = "registry_outbox"

// Append inserts records using the transaction in ctx when there is one.
// Listeners on NotifyChannel are signalled when that transaction commits.
func (s *Store) Append(ctx context.Context, records []events.Record) error {
	if len(records) == 0 {
		return nil
	}
	execer := txcontext.ExecerFrom(ctx, s.db)
	const query = `
		INSERT INTO registry_outbox (id, topic, channel, ledger, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, r := range records {
		if _, err := execer.ExecContext(ctx, query, r.ID, r.Topic, r.Channel, int64(r.Ledger), []byte(r.Payload), r.Timestamp); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	if _, err := execer.ExecContext(ctx, `SELECT pg_notify($1, '')`, NotifyChannel); err != nil {
		return fmt.Errorf("notify outbox: %w", err)
	}
	return nil
}

// Drain locks up to limit unpublished rows, hands them to fn and marks them
// published when fn succeeds. Concurrent relays skip each other's rows.
func (s *Store) Drain(ctx context.Context, limit int, fn func(ctx context.Context, records []events.Record) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin drain: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic, channel, ledger, payload, created_at
		FROM registry_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select pending: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := fn(ctx, records); err != nil {
		return 0, err
	}

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `UPDATE registry_outbox SET published_at = NOW() WHERE id = $1`, r.ID); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit drain: %w", err)
	}
	return len(records), nil
}

// Backlog counts unpublished rows.
func (s *Store) Backlog(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return n, nil
}

// List returns recent records, newest first.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]events.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, channel, ledger, payload, created_at
		FROM registry_outbox
		WHERE ($1 = '' OR topic = $1)
		ORDER BY seq DESC
		LIMIT $2
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]events.Record, error) {
	defer rows.Close()
	var out []events.Record
	for rows.Next() {
		var (
			r       events.Record
			ledger  int64
			payload []byte
		)
		if err := rows.Scan(&r.ID, &r.Topic, &r.Channel, &ledger, &payload, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		r.Ledger = uint32(ledger)
		r.Payload = payload
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}
