package failure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/render"

	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
)

// ExitCode is passed to the exit hook when a failure terminates the process.
const ExitCode = 1

const logPrefix = "[DevPayr] Invalid license: "

// Policy applies the configured invalid behavior.
type Policy struct {
	mode          string
	customMessage string
	redirectURL   string
	viewPath      string

	out    io.Writer
	exit   func(int)
	logger *slog.Logger
}

// Option configures a Policy
type Option func(*Policy)

// WithExitFunc replaces os.Exit.
func WithExitFunc(exit func(int)) Option { return func(p *Policy) { p.exit = exit } }

// WithOutput sets where process-context pages are written (default stdout).
func WithOutput(w io.Writer) Option { return func(p *Policy) { p.out = w } }

func WithLogger(l *slog.Logger) Option { return func(p *Policy) { p.logger = l } }

// New builds a policy from cfg
func New(cfg *config.Config, opts ...Option) *Policy {
	p := &Policy{
		mode:          cfg.InvalidBehavior,
		customMessage: strings.TrimSpace(cfg.CustomInvalidMessage),
		redirectURL:   cfg.RedirectTarget(),
		viewPath:      cfg.CustomInvalidView,
		out:           os.Stdout,
		exit:          os.Exit,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "failure_policy"))
	return p
}

// Mode returns the configured behavior
func (p *Policy) Mode() string { return p.mode }

// Message is the text shown for f: the custom message when configured,
// the failure's own message otherwise.
func (p *Policy) Message(f *apperrors.Failure) string {
	if p.customMessage != "" {
		return p.customMessage
	}
	if f == nil || f.Message == "" {
		return config.DefaultInvalidMessage
	}
	return f.Message
}

func (p *Policy) logFailure(ctx context.Context, f *apperrors.Failure, message string) {
	attrs := []slog.Attr{
		slog.String("action", "handle_failure"),
		slog.String("mode", p.mode),
		slog.String("trace_id", infrastructure.GetTraceID(ctx)),
	}
	if f != nil {
		attrs = append(attrs,
			slog.String("failure_kind", string(f.Kind)),
			slog.String("reason", f.Message))
	}
	p.logger.LogAttrs(ctx, slog.LevelError, logPrefix+message, attrs...)
}

// Handle applies the policy in process context. It returns only for the
// log and silent modes, or when the exit hook returns.
func (p *Policy) Handle(ctx context.Context, f *apperrors.Failure) {
	message := p.Message(f)

	switch p.mode {
	case config.BehaviorSilent:
		return
	case config.BehaviorLog:
		p.logFailure(ctx, f, message)
		return
	case config.BehaviorRedirect:
		p.logFailure(ctx, f, message)
		fmt.Fprintf(p.out, "%s\nUpgrade at: %s\n", message, p.redirectURL)
	default:
		p.logFailure(ctx, f, message)
		fmt.Fprintln(p.out, RenderPage(p.viewPath, message))
	}
	p.exit(ExitCode)
}

// Respond applies the policy to an HTTP request. It reports whether a
// response was written; false means the request may continue.
func (p *Policy) Respond(w http.ResponseWriter, r *http.Request, f *apperrors.Failure) bool {
	ctx := r.Context()
	message := p.Message(f)

	switch p.mode {
	case config.BehaviorSilent:
		return false
	case config.BehaviorLog:
		p.logFailure(ctx, f, message)
		return false
	case config.BehaviorRedirect:
		p.logFailure(ctx, f, message)
		http.Redirect(w, r, p.redirectURL, http.StatusFound)
		return true
	}

	p.logFailure(ctx, f, message)
	if wantsJSON(r) {
		if f == nil {
			f = &apperrors.Failure{Kind: apperrors.KindUnexpected}
		}
		problem := apperrors.NewUnlicensedProblem(&apperrors.Failure{Kind: f.Kind, Message: message},
			r.URL.Path, infrastructure.GetTraceID(ctx))
		render.Render(w, r, problem)
		return true
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	io.WriteString(w, RenderPage(p.viewPath, message))
	return true
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "application/problem+json")
}
