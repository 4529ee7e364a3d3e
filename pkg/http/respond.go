package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"share-gateway/pkg/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service sentinels onto HTTP statuses and stable reason
// codes. Anything unrecognized is a 500 with no internal detail leaked.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var reason string

	switch {
	case errors.Is(err, service.ErrValidation):
		status, reason = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrNotFound):
		status, reason = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrGone):
		status, reason = http.StatusGone, "link_disabled"
	case errors.Is(err, service.ErrPasswordRequired):
		status, reason = http.StatusUnauthorized, "password_required"
	case errors.Is(err, service.ErrInvalidPassword):
		status, reason = http.StatusForbidden, "invalid_password"
	case errors.Is(err, service.ErrRateLimited):
		status, reason = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrLocked):
		status, reason = http.StatusTooManyRequests, "locked"
	case errors.Is(err, service.ErrCodeGeneration):
		status, reason = http.StatusServiceUnavailable, "code_generation_failed"
	case errors.Is(err, service.ErrUpstream):
		status, reason = http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		status, reason = http.StatusInternalServerError, "internal_error"
	}

	writeJSON(w, status, errorResponse{Error: reason})
}
