package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// RFC 7807 problem types
const (
	TypeNotFound      = "/errors/not-found"
	TypeMethod        = "/errors/method-not-allowed"
	TypeUnauthorized  = "/errors/unauthorized"
	TypeRateLimit     = "/errors/rate-limit"
	TypeInternal      = "/errors/internal"
	TypeServiceDown   = "/errors/service-unavailable"
	TypeTimeout       = "/errors/timeout"
	TypeConfiguration = "/errors/configuration"
	TypeLicensePrefix = "/errors/license/"
)

type problemShape struct {
	status int
	typ    string
	title  string
}

// problemByKind is how each failure kind looks to an HTTP client.
// Authority failures are 502 so clients can tell them from their own
// bad requests.
var problemByKind = map[Kind]problemShape{
	KindConfiguration: {http.StatusInternalServerError, TypeConfiguration, "Configuration Error"},
	KindTransport:     {http.StatusBadGateway, TypeServiceDown, "License Authority Unreachable"},
	KindAPI:           {http.StatusBadGateway, TypeServiceDown, "License Authority Error"},
	KindUnpaid:        {http.StatusForbidden, TypeLicensePrefix + string(KindUnpaid), "Unlicensed Software"},
	KindVerification:  {http.StatusForbidden, TypeLicensePrefix + string(KindVerification), "Unlicensed Software"},
	KindDecryption:    {http.StatusForbidden, TypeLicensePrefix + string(KindDecryption), "Unlicensed Software"},
}

// authorityProblemTypes refines KindAPI by the authority's status class
var authorityProblemTypes = map[string]string{
	"UNAUTHORIZED":        TypeUnauthorized,
	"FORBIDDEN":           TypeUnauthorized,
	"NOT_FOUND":           TypeNotFound,
	"RATE_LIMIT_EXCEEDED": TypeRateLimit,
}

// ErrorHandler renders errors and panics as problem details.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an ErrorHandler. includeStack adds the panic
// value and stack to responses, for development only.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and writes it as a problem
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	problem := h.ErrorToProblem(err, r)

	h.logger.LogAttrs(r.Context(), levelFor(problem.Status), "request failed",
		slog.String("error", err.Error()),
		slog.String("kind", string(KindOf(err))),
		slog.Int("status", problem.Status),
		slog.String("path", r.URL.Path),
		slog.String("request_id", problem.TraceID))

	render.Render(w, r, problem)
}

// ErrorToProblem maps the failure taxonomy onto problem details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var problem *ProblemDetails

	kind := KindOf(err)
	shape, known := problemByKind[kind]
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		problem = NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request was cancelled before the license check finished", r.URL.Path)
	case known:
		problem = NewProblemDetails(shape.status, shape.typ, shape.title, err.Error(), r.URL.Path)
		problem.Kind = kind
	default:
		problem = NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			"An unexpected error occurred while processing your request", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if t, ok := authorityProblemTypes[apiErr.ErrorCode]; ok {
			problem.Type = t
		}
		problem.Detail = apiErr.Message
		problem.WithExtension("error_code", apiErr.ErrorCode).
			WithExtension("upstream_status", apiErr.StatusCode)
	}

	problem.TraceID = middleware.GetReqID(r.Context())
	return problem
}

// NotFound is the router's 404 handler
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path))
}

// MethodNotAllowed is the router's 405 handler
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethod, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path))
}

// Middleware turns a panic in a downstream handler into a 500 problem.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			stack := string(debug.Stack())
			h.logger.ErrorContext(r.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
				slog.String("stack", stack))

			problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal,
				"Internal Server Error", "An unexpected error occurred", r.URL.Path)
			if h.includeStack {
				problem.WithExtension("panic", fmt.Sprint(rec)).WithExtension("stack", stack)
			}
			h.write(w, r, problem)
		}()

		next.ServeHTTP(w, r)
	})
}

func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, problem *ProblemDetails) {
	problem.TraceID = middleware.GetReqID(r.Context())
	render.Render(w, r, problem)
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}
