package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// APIError is returned when the remote authority answers with a 4xx/5xx
// status or a body that is not a JSON object.
type APIError struct {
	StatusCode int                    `json:"status_code"`
	ErrorCode  string                 `json:"error_code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("devpayr api error (%d): %s", e.StatusCode, e.Message)
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// Body returns the raw response body the authority sent, if it kept one.
func (e *APIError) Body() string {
	if e.Details == nil {
		return ""
	}
	if raw, ok := e.Details["raw"].(string); ok {
		return raw
	}
	data, err := json.Marshal(e.Details)
	if err != nil {
		return ""
	}
	return string(data)
}

// NewAPIError builds an APIError from a decoded (possibly nil) response body.
// The message falls back to fallback when the body carries none.
func NewAPIError(statusCode int, body map[string]interface{}, fallback string) *APIError {
	message := fallback
	if body != nil {
		if m, ok := body["message"].(string); ok && strings.TrimSpace(m) != "" {
			message = m
		}
	}
	if message == "" {
		message = "API Error"
	}
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCodeForStatus(statusCode),
		Message:    message,
		Details:    body,
	}
}

// NewRawAPIError keeps an unparseable body verbatim under details.raw.
func NewRawAPIError(statusCode int, raw []byte, fallback string) *APIError {
	return NewAPIError(statusCode, map[string]interface{}{"raw": string(raw)}, fallback)
}

func errorCodeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case status == http.StatusForbidden:
		return "FORBIDDEN"
	case status == http.StatusNotFound:
		return "NOT_FOUND"
	case status == http.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case status == http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	case status >= 500:
		return "AUTHORITY_UNAVAILABLE"
	case status >= 400:
		return "INVALID_REQUEST"
	default:
		return "INVALID_RESPONSE"
	}
}
