// Package sqlkv implements storage.KV on an open SQL transaction. The
// postgres and sqlite backends share it and differ only in dialect.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wasmregistry/internal/registry/storage"
)

// Dialect holds the statements for one database. Each statement binds its
// arguments positionally in the order documented on the field.
type Dialect struct {
	// key
	Select string
	// key, value, live_until
	Upsert string
	// key
	Delete string
	// live_until, key
	SetLiveUntil string
}

// KV reads and writes the entries table inside tx at ledger seq.
type KV struct {
	tx      *sql.Tx
	dialect Dialect
	seq     uint32
}

func New(tx *sql.Tx, dialect Dialect, seq uint32) *KV {
	return &KV{tx: tx, dialect: dialect, seq: seq}
}

func (kv *KV) load(ctx context.Context, key storage.Key) (storage.Entry, bool, error) {
	var (
		value []byte
		live  int64
	)
	err := kv.tx.QueryRowContext(ctx, kv.dialect.Select, []byte(key)).Scan(&value, &live)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, false, nil
	}
	if err != nil {
		return storage.Entry{}, false, fmt.Errorf("select entry: %w", err)
	}
	e := storage.Entry{Value: value, LiveUntil: uint32(live)}
	if !e.Live(kv.seq) {
		return storage.Entry{}, false, nil
	}
	return e, true, nil
}

func (kv *KV) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	e, ok, err := kv.load(ctx, key)
	return e.Value, ok, err
}

func (kv *KV) Has(ctx context.Context, key storage.Key) (bool, error) {
	_, ok, err := kv.load(ctx, key)
	return ok, err
}

func (kv *KV) LiveUntil(ctx context.Context, key storage.Key) (uint32, bool, error) {
	e, ok, err := kv.load(ctx, key)
	return e.LiveUntil, ok, err
}

func (kv *KV) Set(ctx context.Context, key storage.Key, value []byte) error {
	e, ok, err := kv.load(ctx, key)
	if err != nil {
		return err
	}
	var existing *storage.Entry
	if ok {
		existing = &e
	}
	live := storage.LiveUntilOnSet(existing, kv.seq)
	if _, err := kv.tx.ExecContext(ctx, kv.dialect.Upsert, []byte(key), value, int64(live)); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, key storage.Key) error {
	if _, err := kv.tx.ExecContext(ctx, kv.dialect.Delete, []byte(key)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (kv *KV) ExtendTTL(ctx context.Context, key storage.Key, threshold, extendTo uint32) error {
	e, ok, err := kv.load(ctx, key)
	if err != nil || !ok {
		return err
	}
	live, changed := storage.Extend(e, kv.seq, threshold, extendTo)
	if !changed {
		return nil
	}
	if _, err := kv.tx.ExecContext(ctx, kv.dialect.SetLiveUntil, int64(live), []byte(key)); err != nil {
		return fmt.Errorf("extend entry: %w", err)
	}
	return nil
}
