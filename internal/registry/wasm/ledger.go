// Package wasm records published artifacts: which hash each version of a
// name points to, and who may publish under that name.
package wasm

import (
	"errors"
	"fmt"

	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/version"
	dErrors "wasmregistry/pkg/domain-errors"
)

// Gate is the slice of the authorization gate the ledger needs.
type Gate interface {
	AuthorizePublish(e *env.Env, author models.Address) error
	Admin(e *env.Env) (models.Address, error)
}

type Ledger struct {
	gate Gate
}

func New(gate Gate) (*Ledger, error) {
	if gate == nil {
		return nil, errors.New("authorization gate is required")
	}
	return &Ledger{gate: gate}, nil
}

func (l *Ledger) record(e *env.Env, n name.Name) (models.ArtifactRecord, error) {
	rec, ok, err := storage.Wasm.Get(e.Context(), e.Storage(), n)
	if err != nil {
		return models.ArtifactRecord{}, fmt.Errorf("load artifact %s: %w", n, err)
	}
	if !ok || len(rec.Versions) == 0 {
		return models.ArtifactRecord{}, dErrors.Newf(dErrors.CodeNoSuchWasmPublished, "no artifact published as %s", n)
	}
	return rec, nil
}

// CurrentVersion returns the highest version published under rawName.
func (l *Ledger) CurrentVersion(e *env.Env, rawName string) (version.Version, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return version.Version{}, err
	}
	rec, err := l.record(e, n)
	if err != nil {
		return version.Version{}, err
	}
	cur, _ := rec.Current()
	return version.Parse(cur.Version)
}

// Versions returns every published version of rawName in ascending order.
func (l *Ledger) Versions(e *env.Env, rawName string) ([]models.VersionedHash, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return nil, err
	}
	rec, err := l.record(e, n)
	if err != nil {
		return nil, err
	}
	return rec.Versions, nil
}

// FetchHash resolves rawVersion, or the current version when nil.
func (l *Ledger) FetchHash(e *env.Env, rawName string, rawVersion *string) (models.Hash, error) {
	_, vh, err := l.resolve(e, rawName, rawVersion)
	return vh.Hash, err
}

// FetchHashUntil is FetchHash that also reports the last ledger the
// artifact record stays live, for callers caching the answer.
func (l *Ledger) FetchHashUntil(e *env.Env, rawName string, rawVersion *string) (models.Hash, uint32, error) {
	n, vh, err := l.resolve(e, rawName, rawVersion)
	if err != nil {
		return models.Hash{}, 0, err
	}
	live, _, err := storage.Wasm.LiveUntil(e.Context(), e.Storage(), n)
	if err != nil {
		return models.Hash{}, 0, err
	}
	return vh.Hash, live, nil
}

// FetchWasm returns the artifact bytes behind rawName at rawVersion, or at
// the current version when nil.
func (l *Ledger) FetchWasm(e *env.Env, rawName string, rawVersion *string) ([]byte, error) {
	_, vh, err := l.resolve(e, rawName, rawVersion)
	if err != nil {
		return nil, err
	}
	return e.Host().FetchWasm(e.Context(), vh.Hash)
}

// FetchHashAndBump is FetchHash for callers about to instantiate the
// artifact: the record and its hash entry get their lifetime extended.
func (l *Ledger) FetchHashAndBump(e *env.Env, rawName string, rawVersion *string) (models.Hash, version.Version, error) {
	n, vh, err := l.resolve(e, rawName, rawVersion)
	if err != nil {
		return models.Hash{}, version.Version{}, err
	}
	if err := storage.Wasm.Bump(e.Context(), e.Storage(), n); err != nil {
		return models.Hash{}, version.Version{}, err
	}
	if err := storage.Hashes.Bump(e.Context(), e.Storage(), vh.Hash); err != nil {
		return models.Hash{}, version.Version{}, err
	}
	v, err := version.Parse(vh.Version)
	return vh.Hash, v, err
}

func (l *Ledger) resolve(e *env.Env, rawName string, rawVersion *string) (name.Name, models.VersionedHash, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return "", models.VersionedHash{}, err
	}
	rec, err := l.record(e, n)
	if err != nil {
		return "", models.VersionedHash{}, err
	}
	if rawVersion == nil {
		cur, _ := rec.Current()
		return n, cur, nil
	}
	v, err := version.Parse(*rawVersion)
	if err != nil {
		return "", models.VersionedHash{}, err
	}
	h, ok := rec.Lookup(v)
	if !ok {
		return "", models.VersionedHash{}, dErrors.Newf(dErrors.CodeNoSuchVersion, "%s has no version %s", n, v)
	}
	return n, models.VersionedHash{Version: v.String(), Hash: h}, nil
}

// PublishHash records hash as rawVersion of rawName on behalf of author.
//
// Checks run in a fixed order: name, signatures, author lock-in, self-name,
// version syntax, hash reuse, version increase.
func (l *Ledger) PublishHash(e *env.Env, rawName string, author models.Address, hash models.Hash, rawVersion string) error {
	ctx, kv := e.Context(), e.Storage()

	n, err := name.Canonicalize(rawName)
	if err != nil {
		return err
	}
	if err := l.gate.AuthorizePublish(e, author); err != nil {
		return err
	}

	rec, exists, err := storage.Wasm.Get(ctx, kv, n)
	if err != nil {
		return fmt.Errorf("load artifact %s: %w", n, err)
	}
	if exists && rec.Author != author {
		return dErrors.Newf(dErrors.CodeWasmNameAlreadyTaken, "%s is published by %s", n, rec.Author)
	}

	if n == name.Registry {
		admin, err := l.gate.Admin(e)
		if err != nil {
			return err
		}
		if author != admin {
			return dErrors.Newf(dErrors.CodeAdminOnly, "only the admin may publish %s", n)
		}
	}

	v, err := version.Parse(rawVersion)
	if err != nil {
		return err
	}

	seen, err := storage.Hashes.Has(ctx, kv, hash)
	if err != nil {
		return fmt.Errorf("check hash %s: %w", hash, err)
	}
	if seen {
		return dErrors.Newf(dErrors.CodeHashAlreadyPublished, "hash %s is already published", hash)
	}

	if cur, ok := rec.Current(); exists && ok {
		curV, err := version.Parse(cur.Version)
		if err != nil {
			return fmt.Errorf("stored version of %s: %w", n, err)
		}
		if err := version.ValidateIncrease(v, &curV); err != nil {
			return err
		}
	}

	rec.Author = author
	rec.Append(v, hash)
	if err := storage.Wasm.Set(ctx, kv, n, rec); err != nil {
		return err
	}
	if err := storage.Wasm.Bump(ctx, kv, n); err != nil {
		return err
	}
	if err := storage.Hashes.Set(ctx, kv, hash, true); err != nil {
		return err
	}
	if err := storage.Hashes.Bump(ctx, kv, hash); err != nil {
		return err
	}

	e.Emit(events.Publish{
		WasmName: n.String(),
		WasmHash: hash,
		Version:  v.String(),
		Author:   author,
	})
	return nil
}

// Publish uploads wasm through the host and records it like PublishHash.
func (l *Ledger) Publish(e *env.Env, rawName string, author models.Address, wasm []byte, rawVersion string) error {
	if _, err := name.Canonicalize(rawName); err != nil {
		return err
	}
	hash, err := e.Host().UploadWasm(e.Context(), wasm)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return l.PublishHash(e, rawName, author, hash, rawVersion)
}
