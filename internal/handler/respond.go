// Package handler provides the HTTP API for Athenaeum.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
)

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error to an HTTP status and writes the JSON body.
// Unrecognized errors are reported as 500 without leaking details.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrCopyNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrUserAlreadyExists),
		errors.Is(err, domain.ErrCopyUnavailable),
		errors.Is(err, domain.ErrCopyAlreadyAvailable),
		errors.Is(err, domain.ErrVersionConflict):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, domain.ErrNotCurrentHolder):
		status = http.StatusForbidden
		message = err.Error()
	}

	writeJSON(w, status, errorResponse{Error: message})
}

// writeValidationError reports a 400 with the validation message.
func writeValidationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// uuidParam extracts and parses a UUID path parameter. A malformed ID
// reports 400 and returns false.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// parseUUIDField parses a UUID carried in a request body field.
func parseUUIDField(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
