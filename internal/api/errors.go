package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/tcplink/internal/link"
)

// Error codes carried in error responses.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

// ErrorBody is the payload of every error response:
//
//	{"error": {"code": "conflict", "message": "link: not connected"}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// linkErrors maps link write failures onto responses. Order matters only
// for errors that wrap one another.
var linkErrors = []struct {
	target error
	status int
	code   string
}{
	{link.ErrNotConnected, http.StatusConflict, ErrCodeConflict},
	{link.ErrShutdown, http.StatusConflict, ErrCodeConflict},
	{link.ErrQueueFull, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{link.ErrEncodeFailed, http.StatusBadRequest, ErrCodeBadRequest},
	{link.ErrNilPayload, http.StatusBadRequest, ErrCodeBadRequest},
}

// linkErrorStatus returns the status and code for a link error. ok is
// false for errors the caller cannot act on.
func linkErrorStatus(err error) (status int, code string, ok bool) {
	for _, e := range linkErrors {
		if errors.Is(err, e.target) {
			return e.status, e.code, true
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // Client may be gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
