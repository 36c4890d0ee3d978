package storage

import (
	"context"
	"fmt"

	"wasmregistry/pkg/platform/sentinel"
)

type kvKey struct{}

// WithKV returns ctx carrying the invocation's KV.
func WithKV(ctx context.Context, kv KV) context.Context {
	return context.WithValue(ctx, kvKey{}, kv)
}

// KVFrom returns the KV of the invocation ctx belongs to.
func KVFrom(ctx context.Context) (KV, error) {
	kv, ok := ctx.Value(kvKey{}).(KV)
	if !ok || kv == nil {
		return nil, fmt.Errorf("no storage transaction in context: %w", sentinel.ErrInvalidState)
	}
	return kv, nil
}
