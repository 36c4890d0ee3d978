package storage

import (
	"context"
)

// Map is a typed view over one namespace. Keys are encoded with the
// supplied function; values are msgpack-encoded.
type Map[K any, V any] struct {
	ns     Namespace
	encode func(K) []byte
}

// NewMap returns a typed map over ns.
func NewMap[K any, V any](ns Namespace, encode func(K) []byte) Map[K, V] {
	return Map[K, V]{ns: ns, encode: encode}
}

// Key returns the encoded key for k.
func (m Map[K, V]) Key(k K) Key { return EncodeKey(m.ns, m.encode(k)) }

func (m Map[K, V]) Get(ctx context.Context, kv KV, k K) (V, bool, error) {
	var v V
	raw, ok, err := kv.Get(ctx, m.Key(k))
	if err != nil || !ok {
		return v, false, err
	}
	if err := decodeValue(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func (m Map[K, V]) Has(ctx context.Context, kv KV, k K) (bool, error) {
	return kv.Has(ctx, m.Key(k))
}

func (m Map[K, V]) Set(ctx context.Context, kv KV, k K, v V) error {
	raw, err := encodeValue(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, m.Key(k), raw)
}

func (m Map[K, V]) Delete(ctx context.Context, kv KV, k K) error {
	return kv.Delete(ctx, m.Key(k))
}

func (m Map[K, V]) ExtendTTL(ctx context.Context, kv KV, k K, threshold, extendTo uint32) error {
	return kv.ExtendTTL(ctx, m.Key(k), threshold, extendTo)
}

func (m Map[K, V]) LiveUntil(ctx context.Context, kv KV, k K) (uint32, bool, error) {
	return kv.LiveUntil(ctx, m.Key(k))
}

// Bump extends k to MaxBump.
func (m Map[K, V]) Bump(ctx context.Context, kv KV, k K) error {
	return m.ExtendTTL(ctx, kv, k, MaxBump, MaxBump)
}
