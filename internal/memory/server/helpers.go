package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/halcyon-ai/mnemo/internal/domain"
)

// ErrorResponse is the JSON error body shared by all handlers.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response.
func respondError(w http.ResponseWriter, errorType string, message string, status int) {
	respondJSON(w, ErrorResponse{Type: errorType, Message: message, Status: status}, status)
}

// respondDomainError maps a domain error to its HTTP shape. User errors keep
// their message; internal errors are logged and surface a generic one.
func respondDomainError(w http.ResponseWriter, err error) {
	switch domain.Classify(err) {
	case domain.ClassUser:
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, domain.ErrMemoryNotFound), errors.Is(err, domain.ErrThreadNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, domain.ErrForbidden):
			status = http.StatusForbidden
		}
		respondError(w, "invalid_request", err.Error(), status)
	case domain.ClassQuota:
		w.Header().Set("Retry-After", "60")
		respondError(w, "rate_limited", err.Error(), http.StatusTooManyRequests)
	case domain.ClassUpstreamTransient:
		respondError(w, "upstream_unavailable", err.Error(), http.StatusServiceUnavailable)
	case domain.ClassUpstreamPermanent:
		respondError(w, "upstream_rejected", err.Error(), http.StatusBadGateway)
	default:
		slog.Error("internal error", "error", err)
		respondError(w, "internal_error", "internal server error", http.StatusInternalServerError)
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// decodeJSON decodes a JSON request body with error handling.
func decodeJSON[T any](r *http.Request, w http.ResponseWriter) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid_request", "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}
