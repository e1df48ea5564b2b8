package http

import (
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/render"

	"github.com/devpayr/devpayr-go/internal/config"
	"github.com/devpayr/devpayr-go/internal/license"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	check  *license.HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(check *license.HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		check:  check,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. Unhealthy answers 503.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	result := h.check.Check(r.Context())
	if result.Status == license.HealthStatusUnhealthy {
		h.logger.WarnContext(r.Context(), "health check unhealthy",
			slog.String("status", string(result.Status)))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, result)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"name":       config.AppName,
		"version":    config.AppVersion,
		"go_version": runtime.Version(),
	})
}
