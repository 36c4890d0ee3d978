// Package storage is the registry's keyed, namespaced, TTL-bearing store.
//
// Every entry point runs inside Backend.RunInTx: reads and writes go through
// the KV handed to the callback and become visible together when it returns
// nil. Lifetimes are counted in ledgers; an entry whose live-until ledger is
// behind the current sequence reads as absent.
package storage

import (
	"context"
)

// Lifetime constants, in ledgers.
const (
	// MaxBump is the lifetime entries are extended to whenever they are
	// touched by a write or a deploy/upgrade read.
	MaxBump uint32 = 535_679
	// MinPersistentTTL is the lifetime of a freshly created entry.
	MinPersistentTTL uint32 = 4_096
)

// Namespace tags the first byte of every key.
type Namespace byte

const (
	NamespaceWasm     Namespace = 0x01
	NamespaceContract Namespace = 0x02
	NamespaceHash     Namespace = 0x03
	NamespaceConfig   Namespace = 0x04
	// NamespaceScope prefixes every key of a scoped sub-store (see Scoped).
	NamespaceScope    Namespace = 0x05
	NamespaceBlob     Namespace = 0x06
	NamespaceInstance Namespace = 0x07
)

func (n Namespace) String() string {
	switch n {
	case NamespaceWasm:
		return "wasm"
	case NamespaceContract:
		return "contract"
	case NamespaceHash:
		return "hash"
	case NamespaceConfig:
		return "config"
	case NamespaceScope:
		return "scope"
	case NamespaceBlob:
		return "blob"
	case NamespaceInstance:
		return "instance"
	}
	return "unknown"
}

// Key is an encoded key: one namespace byte followed by the payload.
type Key string

// EncodeKey builds the key for payload in ns.
func EncodeKey(ns Namespace, payload []byte) Key {
	b := make([]byte, 0, 1+len(payload))
	b = append(b, byte(ns))
	b = append(b, payload...)
	return Key(b)
}

// Namespace returns the namespace tag of k.
func (k Key) Namespace() Namespace {
	if len(k) == 0 {
		return 0
	}
	return Namespace(k[0])
}

// KV is the transactional view handed to an invocation.
type KV interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Has(ctx context.Context, key Key) (bool, error)
	Set(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
	// ExtendTTL sets the entry's live-until to sequence+extendTo when fewer
	// than threshold ledgers remain. Missing entries are left alone.
	ExtendTTL(ctx context.Context, key Key, threshold, extendTo uint32) error
	// LiveUntil returns the live-until ledger of a readable entry.
	LiveUntil(ctx context.Context, key Key) (uint32, bool, error)
}

// Backend runs invocations one at a time. The ctx passed to fn may carry
// backend state (an open SQL transaction) that other stores can join.
type Backend interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, kv KV) error) error
	Close() error
}

// Entry is a stored value with its live-until ledger.
type Entry struct {
	Value     []byte
	LiveUntil uint32
}

// Live reports whether e is readable at seq.
func (e Entry) Live(seq uint32) bool { return e.LiveUntil >= seq }

// LiveUntilOnSet is the live-until of an entry written at seq. Writes never
// shorten a lifetime.
func LiveUntilOnSet(existing *Entry, seq uint32) uint32 {
	live := seq + MinPersistentTTL
	if existing != nil && existing.LiveUntil > live {
		return existing.LiveUntil
	}
	return live
}

// Extend applies the ExtendTTL rule to e and reports whether it changed.
func Extend(e Entry, seq, threshold, extendTo uint32) (uint32, bool) {
	if extendTo > MaxBump {
		extendTo = MaxBump
	}
	if e.LiveUntil-seq >= threshold {
		return e.LiveUntil, false
	}
	if target := seq + extendTo; target > e.LiveUntil {
		return target, true
	}
	return e.LiveUntil, false
}
