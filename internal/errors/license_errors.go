package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/render"
)

// License-path sentinel errors
var (
	ErrMissingCredential = errors.New(`either "license" or "api_key" must be provided in configuration`)
	ErrMissingSecret     = errors.New("missing required config field: secret")
	ErrLicenseRequired   = errors.New("license key is required for runtime validation")
	ErrProjectUnpaid     = errors.New("project is unpaid or unauthorized")
	ErrSignatureMismatch = errors.New("injectable signature mismatch")
	ErrDecryptionFailed  = errors.New("injectable decryption failed")
	ErrInvalidInjectable = errors.New("invalid injectable")
	ErrTargetOutsideRoot = errors.New("injectable target escapes destination directory")
)

// ConfigurationError is fatal and raised before any network call.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid configuration (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError covers network failures and timeouts talking to the authority.
type TransportError struct {
	Method  string
	URL     string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request failed: %s %s timed out: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError classifies err as a timeout when the context deadline or a
// net.Error timeout caused it.
func NewTransportError(method, url string, err error) *TransportError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Method: method, URL: url, Timeout: timeout, Err: err}
}

// VerificationError marks a single injectable whose signature did not match.
type VerificationError struct {
	InjectableID string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("injectable %s: %v", e.InjectableID, ErrSignatureMismatch)
}

func (e *VerificationError) Unwrap() error { return ErrSignatureMismatch }

// DecryptionError marks a single injectable whose content could not be decrypted.
type DecryptionError struct {
	InjectableID string
	Err          error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("injectable %s: %v: %v", e.InjectableID, ErrDecryptionFailed, e.Err)
}

func (e *DecryptionError) Unwrap() []error { return []error{ErrDecryptionFailed, e.Err} }

// CacheIOError is only ever logged; callers treat it as a cache miss.
type CacheIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`

	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// NewProblemDetails creates a problem with the given status, type and title
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WithExtension adds a member beyond the RFC 7807 core fields
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// NewUnlicensedProblem describes a failed license check for JSON clients.
func NewUnlicensedProblem(f *Failure, instance, traceID string) *ProblemDetails {
	pd := NewProblemDetails(http.StatusForbidden, TypeLicensePrefix+string(f.Kind),
		"Unlicensed Software", f.Message, instance)
	pd.Kind = f.Kind
	pd.TraceID = traceID
	return pd
}
