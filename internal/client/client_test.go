package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/internal/security"
)

type captured struct {
	mu      sync.Mutex
	method  string
	path    string
	query   map[string]string
	headers http.Header
	body    map[string]interface{}
}

func (c *captured) record(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.method = r.Method
	c.path = r.URL.Path
	c.headers = r.Header.Clone()
	c.query = map[string]string{}
	for k := range r.URL.Query() {
		c.query[k] = r.URL.Query().Get(k)
	}
	c.body = nil
	_ = json.NewDecoder(r.Body).Decode(&c.body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, baseURL string, opts ...config.Option) *config.Config {
	t.Helper()
	all := append([]config.Option{
		config.WithBaseURL(baseURL),
		config.WithLicense("lic-123"),
		config.WithSecret("s3cret"),
		config.WithDomain(" example.com "),
		config.WithRateLimit(0, 1),
	}, opts...)
	cfg, err := config.New(all...)
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, rec *captured, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.HandleFunc("/api/v1/*", func(w http.ResponseWriter, req *http.Request) {
		rec.record(req)
		handler(w, req)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientHeadersAndQuery(t *testing.T) {
	rec := &captured{}
	srv := newTestServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"ok": true}})
	})

	cfg := testConfig(t, srv.URL+"/api/v1",
		config.WithAPIKey("key-456"),
		config.WithInjectables(true, true),
		config.WithQuery(map[string]string{"env": "prod", "action": "global"}),
	)
	c, err := New(cfg)
	require.NoError(t, err)

	ctx := infrastructure.WithTraceID(context.Background(), "trace-1")
	resp, err := c.Post(ctx, "project/has-paid", map[string]interface{}{"x": 1},
		WithQuery(map[string]string{"action": "call"}))
	require.NoError(t, err)
	assert.Equal(t, true, resp.Data()["ok"])

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/project/has-paid", rec.path)
	assert.Equal(t, "application/json", rec.headers.Get("Accept"))
	assert.Equal(t, "application/json", rec.headers.Get("Content-Type"))
	assert.Equal(t, "lic-123", rec.headers.Get(config.LicenseHeader))
	assert.Equal(t, "key-456", rec.headers.Get(config.APIKeyHeader))
	assert.Equal(t, "example.com", rec.headers.Get(config.DomainHeader))
	assert.Equal(t, "trace-1", rec.headers.Get("X-Request-ID"))
	assert.Equal(t, "prod", rec.query["env"])
	assert.Equal(t, "call", rec.query["action"])
	assert.Equal(t, "injectables", rec.query["include"])
	assert.Equal(t, float64(1), rec.body["x"])
}

func TestHTTPClientDefaults(t *testing.T) {
	rec := &captured{}
	srv := newTestServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	})

	cfg := testConfig(t, srv.URL+"/api/v1/", config.WithInjectables(false, false))
	cfg.PerPage = 25
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/projects", WithRequestDomain("override.io"))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/projects", rec.path)
	assert.Empty(t, rec.headers.Get("Content-Type"))
	assert.Empty(t, rec.headers.Get(config.APIKeyHeader))
	assert.Equal(t, "override.io", rec.headers.Get(config.DomainHeader))
	assert.Equal(t, config.DefaultAction, rec.query["action"])
	assert.Equal(t, "25", rec.query["per_page"])
	_, hasInclude := rec.query["include"]
	assert.False(t, hasInclude)
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		wantRaw     bool
	}{
		{"error with message", http.StatusForbidden, `{"message":"Invalid license"}`, 403, "Invalid license", false},
		{"error without message", http.StatusInternalServerError, `{"error":true}`, 500, "API Request Failed", false},
		{"error with html body", http.StatusBadGateway, `<html>down</html>`, 502, "API Request Failed", true},
		{"success with non json", http.StatusOK, `not json`, 200, "API Error", true},
		{"success with json array", http.StatusOK, `[1,2]`, 200, "API Error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captured{}
			srv := newTestServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c, err := New(testConfig(t, srv.URL+"/api/v1"))
			require.NoError(t, err)

			_, err = c.Get(context.Background(), "projects")
			require.Error(t, err)

			var apiErr *apperrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			if tt.wantRaw {
				assert.Equal(t, tt.body, apiErr.Body())
			}
			assert.Equal(t, apperrors.KindAPI, apperrors.KindOf(err))
		})
	}
}

func TestHTTPClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(testConfig(t, url+"/api/v1"))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "projects")
	var trErr *apperrors.TransportError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
}

func TestHTTPClientTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	c, err := New(testConfig(t, srv.URL+"/api/v1", config.WithTimeout(50*time.Millisecond)))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "projects")
	var trErr *apperrors.TransportError
	require.ErrorAs(t, err, &trErr)
	assert.True(t, trErr.Timeout)
}

func TestHTTPClientCertificatePinning(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"ok": true}})
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		pin     string
		wantErr bool
	}{
		{"matching pin", security.SPKIHash(srv.Certificate()), false},
		{"foreign pin", strings.Repeat("ab", 32), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, srv.URL+"/api/v1/", config.WithPinnedCertificates(tt.pin))
			c, err := New(cfg, WithHTTPClient(srv.Client()))
			require.NoError(t, err)

			_, err = c.Get(context.Background(), "projects")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var trErr *apperrors.TransportError
			require.ErrorAs(t, err, &trErr)
			assert.Contains(t, err.Error(), security.ErrPinMismatch.Error())
		})
	}
}
