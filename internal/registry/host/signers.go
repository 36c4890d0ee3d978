package host

import (
	"context"
	"slices"

	"wasmregistry/internal/registry/models"
)

type signersKey struct{}

// WithSigners records the principals whose signatures were verified for the
// current call.
func WithSigners(ctx context.Context, signers ...models.Address) context.Context {
	return context.WithValue(ctx, signersKey{}, slices.Clone(signers))
}

// Signers returns the verified signers in ctx.
func Signers(ctx context.Context) []models.Address {
	s, _ := ctx.Value(signersKey{}).([]models.Address)
	return s
}

// HasSigned reports whether addr signed the current call.
func HasSigned(ctx context.Context, addr models.Address) bool {
	return slices.Contains(Signers(ctx), addr)
}

// RequireAuth aborts unless addr signed the current call.
func RequireAuth(ctx context.Context, addr models.Address) error {
	if HasSigned(ctx, addr) {
		return nil
	}
	return Abortf("missing signature from %s", addr)
}
