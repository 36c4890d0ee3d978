// Package host is the registry's boundary to the execution host: the
// service that stores artifact blobs, creates instances and calls into them.
package host

import (
	"context"

	"wasmregistry/internal/registry/models"
)

// Entry points every instance is expected to understand.
const (
	FnConstructor = "__constructor"
	FnAdmin       = "admin"
	FnUpgrade     = "upgrade"
)

// Host uploads artifacts, instantiates them and invokes instances. Signers
// of the current call travel in ctx (see WithSigners).
type Host interface {
	// UploadWasm stores the artifact and returns its content hash.
	UploadWasm(ctx context.Context, wasm []byte) (models.Hash, error)
	// FetchWasm returns the artifact stored under hash.
	FetchWasm(ctx context.Context, hash models.Hash) ([]byte, error)
	// Deploy creates an instance of the artifact behind hash at the address
	// derived from deployer and salt.
	Deploy(ctx context.Context, deployer models.Address, salt models.Hash, hash models.Hash) (models.Address, error)
	// Invoke calls fn on the instance at contract. Authorization failures
	// inside the callee are returned as *AbortError.
	Invoke(ctx context.Context, contract models.Address, fn string, args []any) (any, error)
}
