package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/store"
	"github.com/roach88/reactor/internal/syncmgr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrRemoteNotFound),
		errors.Is(err, reactor.ErrUnknownJob),
		registry.IsNotFound(err):
		return http.StatusNotFound
	case ir.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDocumentExists),
		errors.Is(err, syncmgr.ErrRemoteExists),
		queue.IsQueueDeletedError(err):
		return http.StatusConflict
	case errors.Is(err, queue.ErrQueueClosed),
		errors.Is(err, syncmgr.ErrManagerClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
