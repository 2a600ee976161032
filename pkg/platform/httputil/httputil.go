// Package httputil centralizes JSON response writing and domain error
// translation so every handler returns the same envelope shape.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "inkdrop/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the standard JSON error envelope.
// Internal errors omit the description so implementation detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Message != "" {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, ToHTTPStatus(code), body)
}

// ToHTTPStatus maps a domain error code onto an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode decodes a JSON request body into T, rejecting unknown fields.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, dErrors.Wrap(dErrors.CodeBadRequest, "invalid JSON body", err)
	}
	return v, nil
}
