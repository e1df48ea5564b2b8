// Package integration runs the SDK end to end against a fake authority.
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/devpayr/devpayr-go/internal/security"
	"github.com/devpayr/devpayr-go/internal/testutil"
	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

const (
	licenseKey = "lic-integration-0001"
	secret     = "integration-secret"
)

type request struct {
	license string
	domain  string
	query   map[string]string
}

// authority is an in-memory DevPayr API.
type authority struct {
	mu       sync.Mutex
	paid     bool
	items    []map[string]interface{}
	requests []request
}

func (a *authority) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/project/has-paid", func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}

		a.mu.Lock()
		a.requests = append(a.requests, request{
			license: r.Header.Get("X-LICENSE-KEY"),
			domain:  r.Header.Get("X-Devpayr-Domain"),
			query:   q,
		})
		paid, items := a.paid, a.items
		a.mu.Unlock()

		if r.Header.Get("X-LICENSE-KEY") != licenseKey {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]interface{}{"message": "Invalid license"})
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"message": "Project payment status",
			"data":    map[string]interface{}{"has_paid": paid, "injectables": items},
		})
	})
	return r
}

func (a *authority) calls() []request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]request(nil), a.requests...)
}

type LicenseFlowSuite struct {
	suite.Suite
	auth     *authority
	server   *httptest.Server
	cacheDir string
	destDir  string
}

func TestLicenseFlowSuite(t *testing.T) {
	suite.Run(t, new(LicenseFlowSuite))
}

func (s *LicenseFlowSuite) SetupTest() {
	s.auth = &authority{paid: true}
	s.server = httptest.NewServer(s.auth.routes())
	s.cacheDir = s.T().TempDir()
	s.destDir = s.T().TempDir()
}

func (s *LicenseFlowSuite) TearDownTest() {
	s.server.Close()
}

func (s *LicenseFlowSuite) sealed(id, target, plaintext string) map[string]interface{} {
	content, err := security.Encrypt([]byte(plaintext), secret)
	s.Require().NoError(err)
	return map[string]interface{}{
		"id":          id,
		"target_path": target,
		"content":     content,
		"signature":   security.Sign(content, secret),
	}
}

func (s *LicenseFlowSuite) config(opts ...devpayr.ConfigOption) *devpayr.Config {
	all := append([]devpayr.ConfigOption{
		devpayr.WithBaseURL(s.server.URL + "/api/v1"),
		devpayr.WithLicense(licenseKey),
		devpayr.WithSecret(secret),
		devpayr.WithDomain("https://www.shop.example.com:8443/path"),
		devpayr.WithCachePath(s.cacheDir),
		devpayr.WithInjectablesPath(s.destDir),
		devpayr.WithInvalidBehavior("log"),
	}, opts...)
	cfg, err := devpayr.NewConfig(all...)
	s.Require().NoError(err)
	return cfg
}

func (s *LicenseFlowSuite) TestPaidProjectMaterializesInjectables() {
	s.auth.items = []map[string]interface{}{
		s.sealed("1", "assets/banner.html", "<b>licensed</b>"),
		s.sealed("2", "../escape.txt", "nope"),
	}

	capture := testutil.NewLogCapture()
	var readyCount int
	var payload map[string]interface{}

	_, res, err := devpayr.Bootstrap(context.Background(),
		s.config(devpayr.WithInjectables(true, true)),
		devpayr.WithLogger(capture.Logger()),
		devpayr.WithOnReady(func(p map[string]interface{}) {
			readyCount++
			payload = p
		}))
	s.Require().NoError(err)
	s.True(res.OK())
	s.Equal(1, readyCount)
	s.Equal("Project payment status", payload["message"])

	// good item written, escaping item reported but not fatal
	data, err := os.ReadFile(filepath.Join(s.destDir, "assets", "banner.html"))
	s.Require().NoError(err)
	s.Equal("<b>licensed</b>", string(data))
	s.Require().NotNil(res.Injectables)
	s.Equal(1, res.Injectables.Succeeded())
	s.Len(res.Injectables.Failed(), 1)

	calls := s.auth.calls()
	s.Require().Len(calls, 1)
	s.Equal(licenseKey, calls[0].license)
	s.Equal("www.shop.example.com", calls[0].domain)
	s.Equal("injectables", calls[0].query["include"])
	s.Equal("check_project", calls[0].query["action"])

	s.NotContains(capture.Text(), licenseKey)
}

func (s *LicenseFlowSuite) TestCacheAvoidsSecondRemoteCall() {
	cfg := s.config(devpayr.WithRecheck(false))

	_, first, err := devpayr.Bootstrap(context.Background(), cfg)
	s.Require().NoError(err)
	s.False(first.Cached)

	// a fresh client shares the on-disk cache
	var payload map[string]interface{}
	_, second, err := devpayr.Bootstrap(context.Background(), s.config(devpayr.WithRecheck(false)),
		devpayr.WithOnReady(func(p map[string]interface{}) { payload = p }))
	s.Require().NoError(err)
	s.True(second.Cached)
	s.Len(s.auth.calls(), 1)
	s.NotNil(payload)
}

func (s *LicenseFlowSuite) TestUnpaidProjectInvokesPolicy() {
	s.auth.paid = false
	exitCode := -1
	var out testWriter

	_, res, err := devpayr.Bootstrap(context.Background(),
		s.config(devpayr.WithInvalidBehavior("modal"), devpayr.WithCustomInvalidMessage("Pay up <now>")),
		devpayr.WithExitFunc(func(code int) { exitCode = code }),
		devpayr.WithOutput(&out))

	s.Require().Error(err)
	var f *devpayr.Failure
	s.Require().ErrorAs(err, &f)
	s.Equal(devpayr.KindUnpaid, f.Kind)
	s.False(res.OK())
	s.Equal(1, exitCode)
	s.Contains(out.String(), "Pay up &lt;now&gt;")
}

func (s *LicenseFlowSuite) TestRejectedLicenseSurfacesAPIError() {
	_, _, err := devpayr.Bootstrap(context.Background(),
		s.config(devpayr.WithLicense("lic-wrong-000000")))

	s.Require().Error(err)
	var f *devpayr.Failure
	s.Require().ErrorAs(err, &f)
	s.Equal(devpayr.KindAPI, f.Kind)
	var apiErr *devpayr.APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(http.StatusUnauthorized, apiErr.StatusCode)
	s.Equal("Invalid license", apiErr.Message)
}

func TestMissingSecretStopsBeforeNetwork(t *testing.T) {
	auth := &authority{paid: true}
	srv := httptest.NewServer(auth.routes())
	defer srv.Close()

	cfg := &devpayr.Config{BaseURL: srv.URL, License: licenseKey}
	_, _, err := devpayr.Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
	assert.Empty(t, auth.calls())
}

type testWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *testWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
