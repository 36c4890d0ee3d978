package host

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"wasmregistry/internal/registry/models"
	"wasmregistry/pkg/platform/sentinel"
)

// ErrNoSuchEntryPoint is returned when an instance does not export fn.
var ErrNoSuchEntryPoint = errors.New("no such entry point")

// Local is an in-process host for development and tests. Every artifact
// behaves like a minimal upgradeable contract exporting __constructor(admin),
// admin(), upgrade(hash) and hello(arg).
type Local struct {
	mu    sync.Mutex
	state State
}

// LocalOption configures a Local host.
type LocalOption func(*Local)

// WithState keeps blobs and instances in st instead of process memory.
func WithState(st State) LocalOption {
	return func(l *Local) { l.state = st }
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{state: NewMemoryState()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) UploadWasm(ctx context.Context, wasm []byte) (models.Hash, error) {
	if len(wasm) == 0 {
		return models.Hash{}, errors.New("upload: empty artifact")
	}
	h := models.HashOf(wasm)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok, err := l.state.Blob(ctx, h)
	if err != nil {
		return models.Hash{}, fmt.Errorf("upload: %w", err)
	}
	if !ok {
		if err := l.state.PutBlob(ctx, h, wasm); err != nil {
			return models.Hash{}, fmt.Errorf("upload: %w", err)
		}
	}
	return h, nil
}

// FetchWasm returns the bytes uploaded under hash.
func (l *Local) FetchWasm(ctx context.Context, hash models.Hash) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok, err := l.state.Blob(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", hash, err)
	}
	if !ok {
		return nil, fmt.Errorf("fetch artifact %s: %w", hash, sentinel.ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

// DeriveAddress is the instance address for deployer and salt.
func DeriveAddress(deployer models.Address, salt models.Hash) models.Address {
	d := sha256.New()
	d.Write([]byte("contract:"))
	d.Write([]byte(deployer))
	d.Write(salt[:])
	var id [32]byte
	copy(id[:], d.Sum(nil))
	return models.ContractAddress(id)
}

func (l *Local) Deploy(ctx context.Context, deployer models.Address, salt models.Hash, hash models.Hash) (models.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok, err := l.state.Blob(ctx, hash); err != nil {
		return "", fmt.Errorf("deploy: %w", err)
	} else if !ok {
		return "", fmt.Errorf("deploy: artifact %s: %w", hash, sentinel.ErrNotFound)
	}
	addr := DeriveAddress(deployer, salt)
	if _, ok, err := l.state.Instance(ctx, addr); err != nil {
		return "", fmt.Errorf("deploy: %w", err)
	} else if ok {
		return "", fmt.Errorf("deploy: address %s in use: %w", addr, sentinel.ErrConflict)
	}
	if err := l.state.PutInstance(ctx, addr, Instance{Wasm: hash}); err != nil {
		return "", fmt.Errorf("deploy: %w", err)
	}
	return addr, nil
}

func (l *Local) Invoke(ctx context.Context, contract models.Address, fn string, args []any) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok, err := l.state.Instance(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", fn, err)
	}
	if !ok {
		return nil, fmt.Errorf("invoke %s: instance %s: %w", fn, contract, sentinel.ErrNotFound)
	}

	switch fn {
	case FnConstructor:
		if inst.Initialized {
			return nil, fmt.Errorf("%s: already initialized", fn)
		}
		switch len(args) {
		case 0:
		case 1:
			admin, err := addressArg(args[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			inst.Admin = &admin
		default:
			return nil, fmt.Errorf("%s: want at most 1 argument, got %d", fn, len(args))
		}
		inst.Initialized = true
		return nil, l.state.PutInstance(ctx, contract, inst)

	case FnAdmin:
		if inst.Admin == nil {
			return nil, fmt.Errorf("%s: admin not set", fn)
		}
		return *inst.Admin, nil

	case FnUpgrade:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: want 1 argument, got %d", fn, len(args))
		}
		hash, err := hashArg(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if inst.Admin == nil {
			return nil, Abortf("%s: instance has no admin", fn)
		}
		if err := RequireAuth(ctx, *inst.Admin); err != nil {
			return nil, err
		}
		if _, ok, err := l.state.Blob(ctx, hash); err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		} else if !ok {
			return nil, fmt.Errorf("%s: artifact %s: %w", fn, hash, sentinel.ErrNotFound)
		}
		inst.Wasm = hash
		return nil, l.state.PutInstance(ctx, contract, inst)

	case "hello":
		if len(args) != 1 {
			return nil, fmt.Errorf("hello: want 1 argument, got %d", len(args))
		}
		return args[0], nil
	}
	return nil, fmt.Errorf("invoke %q on %s: %w", fn, contract, ErrNoSuchEntryPoint)
}

// InstanceWasm returns the artifact an instance currently runs. It reads
// outside any invocation, so state kept in registry storage reports false.
func (l *Local) InstanceWasm(addr models.Address) (models.Hash, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok, err := l.state.Instance(context.Background(), addr)
	if err != nil || !ok {
		return models.Hash{}, false
	}
	return inst.Wasm, true
}

// HasBlob reports whether hash was uploaded. Like InstanceWasm it reads
// outside any invocation.
func (l *Local) HasBlob(hash models.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok, err := l.state.Blob(context.Background(), hash)
	return err == nil && ok
}

func addressArg(v any) (models.Address, error) {
	switch a := v.(type) {
	case models.Address:
		return models.ParseAddress(string(a))
	case string:
		return models.ParseAddress(a)
	}
	return "", fmt.Errorf("want address argument, got %T", v)
}

func hashArg(v any) (models.Hash, error) {
	switch h := v.(type) {
	case models.Hash:
		return h, nil
	case string:
		return models.ParseHash(h)
	}
	return models.Hash{}, fmt.Errorf("want hash argument, got %T", v)
}
