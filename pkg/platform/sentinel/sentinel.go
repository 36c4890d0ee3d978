package sentinel

import "errors"

// Infrastructure facts returned by storage backends and the execution host.
// Callers wrap them with %w; the registry translates them into typed codes
// or internal failures at the boundary.
//
//   - ErrNotFound: the backend or host has no such object (blob, instance)
//   - ErrConflict: the object already exists (instance address in use)
//   - ErrInvalidState: the call is not legal right now (closed tx, no roles)
//   - ErrUnavailable: the backend could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
