// Package env carries the state of one registry invocation: the storage
// transaction, the verified signers, the ledger sequence, the host and the
// events buffered for publication after commit.
package env

import (
	"context"
	"time"

	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
)

type Env struct {
	ctx      context.Context
	kv       storage.KV
	host     host.Host
	self     models.Address
	sequence uint32
	now      time.Time
	events   []events.Event
}

// New opens an environment over kv. self is the registry's own address.
// The env's context carries kv so a host keeping its state in the same
// storage joins the invocation.
func New(ctx context.Context, kv storage.KV, h host.Host, self models.Address, sequence uint32, now time.Time) *Env {
	return &Env{ctx: storage.WithKV(ctx, kv), kv: kv, host: h, self: self, sequence: sequence, now: now}
}

func (e *Env) Context() context.Context { return e.ctx }

func (e *Env) Storage() storage.KV { return e.kv }

func (e *Env) Host() host.Host { return e.host }

// Self is the registry's own address, the default deployer.
func (e *Env) Self() models.Address { return e.self }

func (e *Env) Sequence() uint32 { return e.sequence }

func (e *Env) Now() time.Time { return e.now }

// RequireAuth aborts unless addr signed the invocation.
func (e *Env) RequireAuth(addr models.Address) error {
	return host.RequireAuth(e.ctx, addr)
}

// HasSigned reports whether addr signed the invocation.
func (e *Env) HasSigned(addr models.Address) bool {
	return host.HasSigned(e.ctx, addr)
}

// Emit buffers ev until the invocation commits.
func (e *Env) Emit(ev events.Event) {
	e.events = append(e.events, ev)
}

// Events returns the buffered events in emission order.
func (e *Env) Events() []events.Event { return e.events }

// Records serializes the buffered events.
func (e *Env) Records() ([]events.Record, error) {
	out := make([]events.Record, 0, len(e.events))
	for _, ev := range e.events {
		r, err := events.NewRecord(ev, e.sequence, e.now)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
