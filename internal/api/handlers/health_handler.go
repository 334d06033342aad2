package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/xpmail/formhub/internal/api/response"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler. db may be nil, which skips the readiness ping.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}

// Ready handles GET /ready: 200 when the database answers a ping.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			response.RespondServiceUnavailable(w, "database unavailable")

			return
		}
	}

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("READY")); err != nil {
		slog.Error("Failed to write readiness response", "error", err)
	}
}
