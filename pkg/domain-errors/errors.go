// Package domainerrors carries the typed failure codes returned by the
// registry ledgers. Ledger codes keep stable numeric discriminants so that
// callers on the other side of a transport can match on them.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a typed failure.
type Code int

// Ledger codes. The numbers are part of the external contract and must never
// be renumbered.
const (
	CodeNoSuchWasmPublished             Code = 1
	CodeNoSuchVersion                   Code = 2
	CodeWasmNameAlreadyTaken            Code = 3
	CodeNoSuchContractDeployed          Code = 4
	CodeAlreadyDeployed                 Code = 5
	CodeUpgradeInvokeFailed             Code = 6
	CodeAdminOnly                       Code = 7
	CodeVersionMustBeGreaterThanCurrent Code = 8
	CodeInvalidName                     Code = 9
	CodeInvalidVersion                  Code = 10
	CodeHashAlreadyPublished            Code = 11
	CodeInitInvokeFailed                Code = 12
)

// Non-ledger codes used by the service and transport layers.
const (
	CodeBadRequest   Code = 100
	CodeInternal     Code = 101
	CodeUnauthorized Code = 102
)

var codeNames = map[Code]string{
	CodeNoSuchWasmPublished:             "no_such_wasm_published",
	CodeNoSuchVersion:                   "no_such_version",
	CodeWasmNameAlreadyTaken:            "wasm_name_already_taken",
	CodeNoSuchContractDeployed:          "no_such_contract_deployed",
	CodeAlreadyDeployed:                 "already_deployed",
	CodeUpgradeInvokeFailed:             "upgrade_invoke_failed",
	CodeAdminOnly:                       "admin_only",
	CodeVersionMustBeGreaterThanCurrent: "version_must_be_greater_than_current",
	CodeInvalidName:                     "invalid_name",
	CodeInvalidVersion:                  "invalid_version",
	CodeHashAlreadyPublished:            "hash_already_published",
	CodeInitInvokeFailed:                "init_invoke_failed",
	CodeBadRequest:                      "bad_request",
	CodeInternal:                        "internal_error",
	CodeUnauthorized:                    "unauthorized",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code_%d", int(c))
}

// IsLedger reports whether c is one of the numbered ledger failures.
func (c Code) IsLedger() bool {
	return c >= CodeNoSuchWasmPublished && c <= CodeInitInvokeFailed
}

// CodeFromString is the inverse of Code.String for known codes.
func CodeFromString(s string) (Code, bool) {
	for c, name := range codeNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

// Error is a typed failure with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a typed error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost typed error in the chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return 0, false
}

// HasCode reports whether the outermost typed error in err's chain has code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }
