package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"ipnis/internal/cache"
	"ipnis/internal/engine"
	"ipnis/internal/manager"
	"ipnis/internal/signing"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, signing.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, signing.ErrAccountNotAllowed):
		return http.StatusForbidden
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case engine.IsDependencyUnavailable(err), errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable
	case cache.IsFetchFailed(err) && errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case cache.IsCompileFailed(err):
		return http.StatusUnprocessableEntity
	case manager.IsBadRequest(err), tensor.IsConversionError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
