package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/leafwise/internal/identify"
	"github.com/kalambet/leafwise/internal/scan"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// errorStatus maps a domain error onto an HTTP status and envelope type.
func errorStatus(err error) (int, string) {
	var upstream *identify.UpstreamError
	switch {
	case errors.Is(err, identify.ErrInvalidImage),
		errors.Is(err, scan.ErrInvalid),
		errors.Is(err, scan.ErrDuplicateID):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, scan.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, scan.ErrNotLoaded):
		return http.StatusServiceUnavailable, "not_loaded"
	case errors.Is(err, scan.ErrNewerVersion):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, identify.ErrNotConfigured):
		return http.StatusServiceUnavailable, "configuration_error"
	case errors.Is(err, identify.ErrNoMatch):
		return http.StatusUnprocessableEntity, "no_match"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, errType := errorStatus(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		slog.Warn("request failed", "status", code, "error", err)
	}
	httpError(w, code, errType, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
