package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/injectable"
	"github.com/devpayr/devpayr-go/internal/license"
)

// LicenseService is what the handler needs from the validator.
type LicenseService interface {
	Validate(ctx context.Context, hints identity.Hints) (*license.Result, error)
	Last() *license.Result
	Cache() *license.Cache
}

// Invalidator drops remembered gate outcomes after a revalidation.
type Invalidator interface {
	Invalidate()
}

// LicenseHandler serves /api/license.
type LicenseHandler struct {
	service      LicenseService
	invalidator  Invalidator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewLicenseHandler creates the handler; invalidator may be nil.
func NewLicenseHandler(service LicenseService, invalidator Invalidator, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:      service,
		invalidator:  invalidator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// StatusResponse describes one validation result.
type StatusResponse struct {
	Valid       bool                    `json:"valid"`
	State       license.State           `json:"state,omitempty"`
	Cached      bool                    `json:"cached"`
	Message     string                  `json:"message,omitempty"`
	Identity    *identity.Identity      `json:"identity,omitempty"`
	Failure     *apperrors.Failure      `json:"failure,omitempty"`
	Trace       []license.State         `json:"trace,omitempty"`
	Injectables []injectable.ItemResult `json:"injectables,omitempty"`
	CheckedAt   *time.Time              `json:"checked_at,omitempty"`
	Cache       map[string]interface{}  `json:"cache,omitempty"`
	TraceID     string                  `json:"trace_id,omitempty"`
}

func newStatusResponse(res *license.Result) *StatusResponse {
	resp := &StatusResponse{}
	if res == nil {
		resp.Message = "license not validated yet"
		return resp
	}
	resp.Valid = res.OK()
	resp.State = res.State()
	resp.Cached = res.Cached
	resp.Message = res.Message
	resp.Failure = res.Failure
	resp.Trace = res.Trace
	if res.Identity.Value != "" {
		id := res.Identity
		resp.Identity = &id
	}
	if res.Injectables != nil {
		resp.Injectables = res.Injectables.Results
	}
	if !res.CheckedAt.IsZero() {
		checked := res.CheckedAt
		resp.CheckedAt = &checked
	}
	return resp
}

// Routes returns the license router
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	r.Post("/revalidate", h.Revalidate)
	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := newStatusResponse(h.service.Last())
	resp.Cache = h.service.Cache().GetStats()
	resp.TraceID = middleware.GetReqID(r.Context())
	render.JSON(w, r, resp)
}

// Revalidate handles POST /api/license/revalidate
func (h *LicenseHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.revalidate")
	defer span.End()
	r = r.WithContext(ctx)

	res, err := h.service.Validate(ctx, identity.HintsFromRequest(r))
	if h.invalidator != nil {
		h.invalidator.Invalidate()
	}

	span.SetAttributes(attribute.Bool("license.valid", err == nil))
	if err != nil {
		h.logger.WarnContext(ctx, "revalidation rejected",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(ctx)))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := newStatusResponse(res)
	resp.TraceID = middleware.GetReqID(ctx)
	render.JSON(w, r, resp)
}
