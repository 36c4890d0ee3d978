// Package httputil writes JSON responses and maps registry failures to HTTP
// statuses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"wasmregistry/internal/registry/host"
	dErrors "wasmregistry/pkg/domain-errors"
	"wasmregistry/pkg/platform/sentinel"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        int    `json:"code,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// AbortError is the error name reported for aborted invocations.
const AbortError = "abort"

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err. Typed codes keep their name and discriminant,
// aborts become 403 and anything else is an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	status, body := Describe(err)
	WriteJSON(w, status, body)
}

// Describe maps err to a status and body.
func Describe(err error) (int, ErrorResponse) {
	if host.IsAbort(err) {
		return http.StatusForbidden, ErrorResponse{Error: AbortError}
	}
	if code, ok := dErrors.CodeOf(err); ok {
		status := StatusFor(code)
		body := ErrorResponse{Error: code.String(), Code: int(code)}
		if status != http.StatusInternalServerError {
			body.Description = err.Error()
		}
		return status, body
	}
	switch {
	case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Description: err.Error()}
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Description: err.Error()}
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: dErrors.CodeInternal.String(), Code: int(dErrors.CodeInternal)}
}

func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNoSuchWasmPublished, dErrors.CodeNoSuchVersion, dErrors.CodeNoSuchContractDeployed:
		return http.StatusNotFound
	case dErrors.CodeWasmNameAlreadyTaken, dErrors.CodeAlreadyDeployed,
		dErrors.CodeHashAlreadyPublished, dErrors.CodeVersionMustBeGreaterThanCurrent:
		return http.StatusConflict
	case dErrors.CodeAdminOnly:
		return http.StatusForbidden
	case dErrors.CodeInvalidName, dErrors.CodeInvalidVersion, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUpgradeInvokeFailed, dErrors.CodeInitInvokeFailed:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
