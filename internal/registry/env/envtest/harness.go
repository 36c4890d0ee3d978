// Package envtest runs ledger code inside a real in-memory invocation.
package envtest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/storage/memory"
)

// Harness owns a memory backend and a host.
type Harness struct {
	Backend *memory.Store
	Seq     *storage.ManualSequence
	Host    host.Host
	Self    models.Address
	Now     time.Time
}

// New builds a harness around h; a nil h gets a fresh local host.
func New(h host.Host) *Harness {
	if h == nil {
		h = host.NewLocal()
	}
	seq := storage.NewManualSequence(100)
	return &Harness{
		Backend: memory.New(seq),
		Seq:     seq,
		Host:    h,
		Self:    models.ContractAddress(models.HashOf([]byte("registry"))),
		Now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Run executes fn as one invocation signed by signers and returns the
// events it emitted. Nothing is committed when fn fails.
func (h *Harness) Run(signers []models.Address, fn func(e *env.Env) error) ([]events.Event, error) {
	var emitted []events.Event
	ctx := host.WithSigners(context.Background(), signers...)
	err := h.Backend.RunInTx(ctx, func(ctx context.Context, kv storage.KV) error {
		e := env.New(ctx, kv, h.Host, h.Self, h.Seq.Sequence(), h.Now)
		if err := fn(e); err != nil {
			return err
		}
		emitted = e.Events()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return emitted, nil
}

// Signed is a shorthand for a signer list.
func Signed(addrs ...models.Address) []models.Address { return addrs }

// Account returns a fresh account address.
func Account() models.Address {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return models.AccountAddress(pub)
}
