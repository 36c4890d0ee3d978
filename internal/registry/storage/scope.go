package storage

import (
	"context"
)

// Scoped returns a Backend that shares b's transactions but keeps its keys
// apart: every key is stored under NamespaceScope, the scope length and the
// scope itself. Closing the scoped backend leaves b open.
func Scoped(b Backend, scope string) Backend {
	prefix := make([]byte, 0, 2+len(scope))
	prefix = append(prefix, byte(NamespaceScope), byte(len(scope)))
	prefix = append(prefix, scope...)
	return &scoped{base: b, prefix: string(prefix)}
}

type scoped struct {
	base   Backend
	prefix string
}

func (s *scoped) RunInTx(ctx context.Context, fn func(ctx context.Context, kv KV) error) error {
	return s.base.RunInTx(ctx, func(ctx context.Context, kv KV) error {
		return fn(ctx, scopedKV{kv: kv, prefix: s.prefix})
	})
}

func (s *scoped) Close() error { return nil }

type scopedKV struct {
	kv     KV
	prefix string
}

func (s scopedKV) key(k Key) Key { return Key(s.prefix + string(k)) }

func (s scopedKV) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	return s.kv.Get(ctx, s.key(key))
}

func (s scopedKV) Has(ctx context.Context, key Key) (bool, error) {
	return s.kv.Has(ctx, s.key(key))
}

func (s scopedKV) Set(ctx context.Context, key Key, value []byte) error {
	return s.kv.Set(ctx, s.key(key), value)
}

func (s scopedKV) Delete(ctx context.Context, key Key) error {
	return s.kv.Delete(ctx, s.key(key))
}

func (s scopedKV) ExtendTTL(ctx context.Context, key Key, threshold, extendTo uint32) error {
	return s.kv.ExtendTTL(ctx, s.key(key), threshold, extendTo)
}

func (s scopedKV) LiveUntil(ctx context.Context, key Key) (uint32, bool, error) {
	return s.kv.LiveUntil(ctx, s.key(key))
}
