package host

import (
	"context"
	"sync"

	"wasmregistry/internal/registry/models"
)

// Instance is the host-side record of a deployed artifact.
type Instance struct {
	Wasm        models.Hash     `msgpack:"wasm"`
	Admin       *models.Address `msgpack:"admin,omitempty"`
	Initialized bool            `msgpack:"initialized"`
}

// State is where a Local host keeps blobs and instances.
type State interface {
	Blob(ctx context.Context, hash models.Hash) ([]byte, bool, error)
	PutBlob(ctx context.Context, hash models.Hash, wasm []byte) error
	Instance(ctx context.Context, addr models.Address) (Instance, bool, error)
	PutInstance(ctx context.Context, addr models.Address, inst Instance) error
}

// MemoryState keeps host state in process. It is lost on restart.
type MemoryState struct {
	mu        sync.RWMutex
	blobs     map[models.Hash][]byte
	instances map[models.Address]Instance
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		blobs:     make(map[models.Hash][]byte),
		instances: make(map[models.Address]Instance),
	}
}

func (m *MemoryState) Blob(_ context.Context, hash models.Hash) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[hash]
	return b, ok, nil
}

func (m *MemoryState) PutBlob(_ context.Context, hash models.Hash, wasm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hash] = append([]byte(nil), wasm...)
	return nil
}

func (m *MemoryState) Instance(_ context.Context, addr models.Address) (Instance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[addr]
	if ok && inst.Admin != nil {
		a := *inst.Admin
		inst.Admin = &a
	}
	return inst, ok, nil
}

func (m *MemoryState) PutInstance(_ context.Context, addr models.Address, inst Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[addr] = inst
	return nil
}
