package failure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
)

func newPolicy(t *testing.T, opts ...config.Option) (*Policy, *bytes.Buffer, *bytes.Buffer, *[]int) {
	t.Helper()
	all := append([]config.Option{
		config.WithLicense("lic"),
		config.WithSecret("secret"),
	}, opts...)
	cfg, err := config.New(all...)
	require.NoError(t, err)

	var out, logs bytes.Buffer
	var exits []int
	p := New(cfg,
		WithOutput(&out),
		WithExitFunc(func(code int) { exits = append(exits, code) }),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	return p, &out, &logs, &exits
}

var unpaid = &apperrors.Failure{Kind: apperrors.KindUnpaid, Message: "Project is unpaid or unauthorized."}

func TestMessage(t *testing.T) {
	p, _, _, _ := newPolicy(t)
	assert.Equal(t, config.DefaultInvalidMessage, p.Message(unpaid))

	p, _, _, _ = newPolicy(t, config.WithCustomInvalidMessage("Buy a license"))
	assert.Equal(t, "Buy a license", p.Message(unpaid))

	p, _, _, _ = newPolicy(t, config.WithCustomInvalidMessage(""))
	assert.Equal(t, unpaid.Message, p.Message(unpaid))
	assert.Equal(t, config.DefaultInvalidMessage, p.Message(nil))
}

func TestHandleProcessContext(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		wantExit   bool
		wantOutput string
		wantLog    bool
	}{
		{"silent", config.BehaviorSilent, false, "", false},
		{"log", config.BehaviorLog, false, "", true},
		{"redirect", config.BehaviorRedirect, true, config.DefaultRedirectURL, true},
		{"modal", config.BehaviorModal, true, "Unlicensed Software", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out, logs, exits := newPolicy(t,
				config.WithInvalidBehavior(tt.mode),
				config.WithCustomInvalidMessage(""))
			p.Handle(context.Background(), unpaid)

			if tt.wantExit {
				assert.Equal(t, []int{ExitCode}, *exits)
			} else {
				assert.Empty(t, *exits)
			}
			if tt.wantOutput != "" {
				assert.Contains(t, out.String(), tt.wantOutput)
			} else {
				assert.Empty(t, out.String())
			}
			if tt.wantLog {
				assert.Contains(t, logs.String(), "[DevPayr] Invalid license: Project is unpaid or unauthorized.")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestRespondHTTPContext(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		accept     string
		wantWrote  bool
		wantStatus int
		wantBody   string
	}{
		{"silent passes", config.BehaviorSilent, "", false, 0, ""},
		{"log passes", config.BehaviorLog, "", false, 0, ""},
		{"redirect", config.BehaviorRedirect, "", true, http.StatusFound, ""},
		{"modal html", config.BehaviorModal, "text/html", true, http.StatusForbidden, "Unlicensed Software"},
		{"modal json", config.BehaviorModal, "application/json", true, http.StatusForbidden, `"kind":"unpaid"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _, exits := newPolicy(t, config.WithInvalidBehavior(tt.mode))
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()

			wrote := p.Respond(rec, req, unpaid)
			assert.Equal(t, tt.wantWrote, wrote)
			assert.Empty(t, *exits)
			if !tt.wantWrote {
				return
			}
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRespondRedirectTarget(t *testing.T) {
	p, _, _, _ := newPolicy(t,
		config.WithInvalidBehavior(config.BehaviorRedirect),
		config.WithRedirectURL("https://shop.example.com/buy"))
	rec := httptest.NewRecorder()
	p.Respond(rec, httptest.NewRequest(http.MethodGet, "/", nil), unpaid)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://shop.example.com/buy", rec.Header().Get("Location"))
}

func TestRespondProblemDetails(t *testing.T) {
	p, _, _, _ := newPolicy(t, config.WithCustomInvalidMessage("Buy a license"))
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	p.Respond(rec, req, unpaid)

	var problem apperrors.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusForbidden, problem.Status)
	assert.Equal(t, apperrors.TypeLicensePrefix+"unpaid", problem.Type)
	assert.Equal(t, "Buy a license", problem.Detail)
	assert.Equal(t, "/api/data", problem.Instance)
}

func TestRenderPage(t *testing.T) {
	t.Run("built-in page escapes", func(t *testing.T) {
		page := RenderPage("", `<script>alert(1)</script>`)
		assert.Contains(t, page, "&lt;script&gt;")
		assert.NotContains(t, page, "<script>")
	})

	t.Run("custom view", func(t *testing.T) {
		view := filepath.Join(t.TempDir(), "view.html")
		require.NoError(t, os.WriteFile(view, []byte("<div>{{message}}</div><i>{{message}}</i>"), 0o644))
		page := RenderPage(view, "a & b")
		assert.Equal(t, "<div>a &amp; b</div><i>a &amp; b</i>", page)
	})

	t.Run("missing view falls back", func(t *testing.T) {
		page := RenderPage(filepath.Join(t.TempDir(), "missing.html"), "nope")
		assert.Contains(t, page, "<h1>Unlicensed Software</h1>")
		assert.Contains(t, page, "nope")
	})
}
