// Package stored keeps a local host's blobs and instances in registry
// storage, inside the invocation that touches them. A registry over a
// durable backend keeps its artifacts and instances across restarts, and a
// failed invocation leaves no host state behind.
package stored

import (
	"context"

	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
)

var (
	blobs     = storage.NewMap[models.Hash, []byte](storage.NamespaceBlob, func(h models.Hash) []byte { return h[:] })
	instances = storage.NewMap[models.Address, host.Instance](storage.NamespaceInstance, func(a models.Address) []byte { return []byte(a) })
)

// State implements host.State over the KV carried by the invocation ctx.
// Entries are bumped to storage.MaxBump whenever they are read or written.
type State struct{}

func New() State { return State{} }

func (State) Blob(ctx context.Context, hash models.Hash) ([]byte, bool, error) {
	kv, err := storage.KVFrom(ctx)
	if err != nil {
		return nil, false, err
	}
	b, ok, err := blobs.Get(ctx, kv, hash)
	if err != nil || !ok {
		return nil, false, err
	}
	return b, true, blobs.Bump(ctx, kv, hash)
}

func (State) PutBlob(ctx context.Context, hash models.Hash, wasm []byte) error {
	kv, err := storage.KVFrom(ctx)
	if err != nil {
		return err
	}
	if err := blobs.Set(ctx, kv, hash, wasm); err != nil {
		return err
	}
	return blobs.Bump(ctx, kv, hash)
}

func (State) Instance(ctx context.Context, addr models.Address) (host.Instance, bool, error) {
	kv, err := storage.KVFrom(ctx)
	if err != nil {
		return host.Instance{}, false, err
	}
	inst, ok, err := instances.Get(ctx, kv, addr)
	if err != nil || !ok {
		return host.Instance{}, false, err
	}
	return inst, true, instances.Bump(ctx, kv, addr)
}

func (State) PutInstance(ctx context.Context, addr models.Address, inst host.Instance) error {
	kv, err := storage.KVFrom(ctx)
	if err != nil {
		return err
	}
	if err := instances.Set(ctx, kv, addr, inst); err != nil {
		return err
	}
	return instances.Bump(ctx, kv, addr)
}
