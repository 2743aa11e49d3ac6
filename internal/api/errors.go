package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/lightswitch/internal/state"
)

// Error is the JSON body of every error response. Clients only rely on
// the error field.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotConfigured      = "not_configured"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeInternal           = "internal_error"
)

// Client-facing messages.
const (
	msgUnknownDevice = "Unknown device"
	msgInvalidState  = "state must be a boolean"
	msgNotConfigured = "State store is not configured"
	msgFetchFailed   = "Failed to fetch states"
	msgUpdateFailed  = "Failed to update state"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Error: message, Code: code})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeStoreError maps a state store failure to a 500 response. The cause is
// logged, never returned to the client.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.logger.Error("state store operation failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
		"request_id", requestIDFrom(r.Context()),
	)

	switch {
	case errors.Is(err, state.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, ErrCodeNotConfigured, msgNotConfigured)
	case errors.Is(err, state.ErrStorageUnavailable):
		writeError(w, http.StatusInternalServerError, ErrCodeStorageUnavailable, message)
	default:
		writeInternalError(w, message)
	}
}
