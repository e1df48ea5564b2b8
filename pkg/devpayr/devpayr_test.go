package devpayr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpayr/devpayr-go/internal/client"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
)

type stubAuthority struct {
	paid  bool
	err   error
	calls int
}

func (s *stubAuthority) CheckWithLicenseKey(ctx context.Context, opts ...client.RequestOption) (*client.PaymentStatus, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &client.PaymentStatus{
		Data: client.PaymentData{HasPaid: s.paid},
		Raw:  client.Response{"data": map[string]interface{}{"has_paid": s.paid}},
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, opts ...ConfigOption) *Config {
	t.Helper()
	base := []ConfigOption{
		WithLicense("lic-0123456789"),
		WithSecret("secret"),
		WithDomain("app.example.com"),
		WithCachePath(t.TempDir()),
		WithInjectables(false, false),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, apperrors.KindOf(err))
}

func TestBootstrapPaid(t *testing.T) {
	auth := &stubAuthority{paid: true}
	var payloads []map[string]interface{}

	c, res, err := Bootstrap(context.Background(), testConfig(t, WithRecheck(false)),
		WithAuthority(auth),
		WithLogger(quietLogger()),
		WithOnReady(func(p map[string]interface{}) { payloads = append(payloads, p) }))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.OK())
	assert.False(t, res.Cached)
	require.Len(t, payloads, 1)
	assert.Equal(t, map[string]interface{}{"has_paid": true}, payloads[0]["data"])

	res, err = c.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Len(t, payloads, 1, "ready hook fires once")
	assert.Equal(t, 1, auth.calls)
}

func TestBootstrapAPIKeyModeSkipsValidation(t *testing.T) {
	auth := &stubAuthority{paid: true}
	cfg, err := NewConfig(WithAPIKey("api-key"), WithSecret("secret"), WithCachePath(t.TempDir()))
	require.NoError(t, err)

	var payloads []map[string]interface{}
	c, res, err := Bootstrap(context.Background(), cfg,
		WithAuthority(auth),
		WithLogger(quietLogger()),
		WithOnReady(func(p map[string]interface{}) { payloads = append(payloads, p) }))
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Nil(t, res)
	assert.Zero(t, auth.calls)
	require.Len(t, payloads, 1, "ready hook fires with a nil payload")
	assert.Nil(t, payloads[0])

	_, err = c.Validate(context.Background())
	require.NoError(t, err)
	assert.Len(t, payloads, 1)
}

func TestDomainHeaderCarriesResolvedIdentity(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]string{}
	)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			mu.Lock()
			seen[req.URL.Path] = req.Header.Get("X-Devpayr-Domain")
			mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/project/has-paid", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]interface{}{"data": map[string]interface{}{"has_paid": true}})
	})
	r.Get("/projects", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]interface{}{"data": []interface{}{}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		domain string
		check  func(t *testing.T, c *Client, header string)
	}{
		{"fingerprint without domain", "", func(t *testing.T, c *Client, header string) {
			assert.Regexp(t, `^fp_[0-9a-f]{32}$`, header)
			assert.Equal(t, c.Identity().Value, header)
		}},
		{"normalized configured domain", "HTTPS://Shop.Example.com:8443/app", func(t *testing.T, c *Client, header string) {
			assert.Equal(t, "shop.example.com", header)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []ConfigOption{
				WithBaseURL(srv.URL + "/"),
				WithLicense("lic-0123456789"),
				WithSecret("secret"),
				WithCachePath(t.TempDir()),
				WithInjectables(false, false),
			}
			if tt.domain != "" {
				opts = append(opts, WithDomain(tt.domain))
			}
			cfg, err := NewConfig(opts...)
			require.NoError(t, err)

			c, _, err := Bootstrap(context.Background(), cfg, WithLogger(quietLogger()), WithHints(Hints{}))
			require.NoError(t, err)
			_, err = c.Projects().List(context.Background())
			require.NoError(t, err)

			mu.Lock()
			paidHeader, listHeader := seen["/project/has-paid"], seen["/projects"]
			mu.Unlock()
			tt.check(t, c, paidHeader)
			assert.Equal(t, paidHeader, listHeader, "CRUD calls carry the same identity")
		})
	}
}

func TestBootstrapFailureModes(t *testing.T) {
	tests := []struct {
		name      string
		behavior  string
		auth      *stubAuthority
		wantKind  Kind
		wantExit  bool
		wantPrint string
	}{
		{"modal exits", "modal", &stubAuthority{paid: false}, KindUnpaid, true, "Unlicensed Software"},
		{"redirect exits", "redirect", &stubAuthority{paid: false}, KindUnpaid, true, "Upgrade at: https://devpayr.com/upgrade"},
		{"log continues", "log", &stubAuthority{paid: false}, KindUnpaid, false, ""},
		{"silent continues", "silent", &stubAuthority{paid: false}, KindUnpaid, false, ""},
		{"transport failure", "log", &stubAuthority{err: &apperrors.TransportError{Method: "POST", URL: "x", Err: errors.New("refused")}}, KindTransport, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			exitCode := -1
			var ready bool

			_, res, err := Bootstrap(context.Background(), testConfig(t, WithInvalidBehavior(tt.behavior)),
				WithAuthority(tt.auth),
				WithLogger(quietLogger()),
				WithOutput(&out),
				WithExitFunc(func(code int) { exitCode = code }),
				WithOnReady(func(map[string]interface{}) { ready = true }))

			require.Error(t, err)
			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.wantKind, f.Kind)
			require.NotNil(t, res)
			assert.False(t, res.OK())
			assert.False(t, ready)

			if tt.wantExit {
				assert.Equal(t, 1, exitCode)
				assert.Contains(t, out.String(), tt.wantPrint)
			} else {
				assert.Equal(t, -1, exitCode)
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	assert.Contains(t, GetVersionString(), Version)
	assert.Contains(t, GetFullVersionString(), "commit:")
}
