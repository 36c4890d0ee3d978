package stored_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/host/stored"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/storage/memory"
	"wasmregistry/pkg/platform/sentinel"
)

func run(t *testing.T, b storage.Backend, fn func(ctx context.Context) error) error {
	t.Helper()
	return b.RunInTx(context.Background(), func(ctx context.Context, kv storage.KV) error {
		return fn(storage.WithKV(ctx, kv))
	})
}

func TestHostStateCommitsWithTheInvocation(t *testing.T) {
	seq := storage.NewManualSequence(1)
	backend := memory.New(seq)
	local := host.NewLocal(host.WithState(stored.New()))
	deployer := models.ContractAddress(models.HashOf([]byte("deployer")))
	admin := models.ContractAddress(models.HashOf([]byte("admin")))
	boom := errors.New("boom")

	err := run(t, backend, func(ctx context.Context) error {
		_, err := local.UploadWasm(ctx, []byte("discarded"))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var (
		hash models.Hash
		addr models.Address
	)
	err = run(t, backend, func(ctx context.Context) error {
		_, err := local.FetchWasm(ctx, models.HashOf([]byte("discarded")))
		assert.ErrorIs(t, err, sentinel.ErrNotFound, "rolled back upload left a blob")

		hash, err = local.UploadWasm(ctx, []byte("kept"))
		require.NoError(t, err)
		addr, err = local.Deploy(ctx, deployer, models.HashOf([]byte("salt")), hash)
		require.NoError(t, err)
		_, err = local.Invoke(ctx, addr, host.FnConstructor, []any{admin})
		return err
	})
	require.NoError(t, err)

	// A fresh host over the same storage sees everything committed.
	restarted := host.NewLocal(host.WithState(stored.New()))
	err = run(t, backend, func(ctx context.Context) error {
		got, err := restarted.FetchWasm(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("kept"), got)

		out, err := restarted.Invoke(ctx, addr, host.FnAdmin, nil)
		require.NoError(t, err)
		assert.Equal(t, admin, out)

		_, err = restarted.Deploy(ctx, deployer, models.HashOf([]byte("salt")), hash)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestHostStateRequiresAnInvocation(t *testing.T) {
	local := host.NewLocal(host.WithState(stored.New()))
	_, err := local.UploadWasm(context.Background(), []byte("wasm"))
	require.ErrorIs(t, err, sentinel.ErrInvalidState)
	assert.False(t, local.HasBlob(models.HashOf([]byte("wasm"))))
}
