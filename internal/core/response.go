// Package core provides the HTTP chassis for the Lembra worker: router
// construction, cross-cutting middleware (panic recovery, request IDs,
// logging, CORS), and the dual-path trigger authentication guard.
package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"lembra/internal/types"
)

// ErrorResponse is the flat error envelope returned to callers. The trigger
// endpoint's 500 responses may carry extra diagnostic fields; those are
// written by the handler directly.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code and payload.
func JSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. AppErrors map to their HTTP status and
// expose their message; anything else becomes a 500 with a generic message
// so internal details never leak.
func Error(w http.ResponseWriter, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message})
		return
	}
	JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "an unexpected error occurred"})
}
