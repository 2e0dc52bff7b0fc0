// Package httpx holds the HTTP plumbing shared by every handler: JSON
// envelopes, error mapping, request validation and the session identity.
package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bookswap/internal/apperr"
)

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err to a status code and writes it. Errors outside the apperr
// kinds are logged and reported as a generic internal error.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		msg = "internal server error"
	}
	JSON(w, status, ErrorEnvelope{Error: msg, Code: apperr.Code(err)})
}

// StatusOf returns the HTTP status for an error kind.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUnavailable), errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
