package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hackgods/booking-platform/internal/apperr"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.InvalidState:
		return http.StatusUnprocessableEntity
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError maps a service error onto the wire. Unclassified errors are
// logged and hidden behind internal_error.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.Internal {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if e.Kind == apperr.Unavailable {
		logger.WarnContext(r.Context(), "request unavailable", "path", r.URL.Path, "err", err)
	}
	writeError(w, statusFor(e.Kind), e.Code, e.Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
