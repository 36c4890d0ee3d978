package host

import (
	"errors"
	"fmt"
)

// AbortError ends an invocation without a typed code. It is how missing
// signatures surface to callers.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string { return "abort: " + e.Reason }

// Abortf builds an AbortError.
func Abortf(format string, args ...any) error {
	return &AbortError{Reason: fmt.Sprintf(format, args...)}
}

// IsAbort reports whether err is, or wraps, an AbortError.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
