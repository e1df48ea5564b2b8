package license

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/devpayr/devpayr-go/internal/client"
	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/injectable"
	"github.com/devpayr/devpayr-go/internal/security"
	"github.com/devpayr/devpayr-go/internal/testutil"
)

const testSecret = "top-secret"

// MockAuthority implements Authority for testing
type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) CheckWithLicenseKey(ctx context.Context, opts ...client.RequestOption) (*client.PaymentStatus, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.PaymentStatus), args.Error(1)
}

func paid(items ...injectable.Injectable) *client.PaymentStatus {
	raw := client.Response{"message": "ok", "data": map[string]interface{}{"has_paid": true}}
	return &client.PaymentStatus{
		Message: "ok",
		Data:    client.PaymentData{HasPaid: true, Injectables: items},
		Raw:     raw,
	}
}

func sealedItem(t *testing.T, id, target, plaintext string) injectable.Injectable {
	t.Helper()
	content, err := security.Encrypt([]byte(plaintext), testSecret)
	require.NoError(t, err)
	return injectable.Injectable{
		ID:         injectable.ID(id),
		TargetPath: target,
		Content:    content,
		Signature:  security.Sign(content, testSecret),
	}
}

func newTestValidator(t *testing.T, auth Authority, opts ...config.Option) (*Validator, *config.Config) {
	t.Helper()
	all := append([]config.Option{
		config.WithBaseURL("https://api.devpayr.test/api/v1/"),
		config.WithLicense("lic-abcdef123456"),
		config.WithSecret(testSecret),
		config.WithCachePath(t.TempDir()),
	}, opts...)
	cfg, err := config.New(all...)
	require.NoError(t, err)

	v, err := NewValidator(cfg, auth)
	require.NoError(t, err)
	return v, cfg
}

func TestValidatePaidWithoutInjectables(t *testing.T) {
	auth := &MockAuthority{}
	status := paid()
	auth.On("CheckWithLicenseKey").Return(status, nil).Once()

	v, cfg := newTestValidator(t, auth, config.WithRecheck(true))
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)

	assert.Equal(t, []State{StateStart, StateRemoteCheck, StateValidated, StateDone}, res.Trace)
	assert.True(t, res.OK())
	assert.False(t, res.Cached)
	assert.Equal(t, map[string]interface{}(status.Raw), res.Payload())
	assert.Equal(t, identity.SourceFingerprint, res.Identity.Source)

	data, err := os.ReadFile(v.Cache().Path(cfg.License, res.Identity.Value))
	require.NoError(t, err)
	assert.Equal(t, time.Now().Format(config.CacheDateLayout), string(data))
	assert.Same(t, res, v.Last())
	auth.AssertExpectations(t)
}

func TestValidateUnpaid(t *testing.T) {
	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(&client.PaymentStatus{}, nil).Once()

	v, cfg := newTestValidator(t, auth)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.Error(t, err)

	var failure *apperrors.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, apperrors.KindUnpaid, failure.Kind)
	assert.Equal(t, UnpaidMessage, failure.Message)
	assert.False(t, failure.Fatal())
	assert.True(t, errors.Is(err, apperrors.ErrProjectUnpaid))

	assert.Equal(t, StateRejected, res.State())
	assert.Same(t, failure, res.Failure)
	assert.NoFileExists(t, v.Cache().Path(cfg.License, res.Identity.Value))
}

func TestValidateServedFromCache(t *testing.T) {
	auth := &MockAuthority{}
	v, cfg := newTestValidator(t, auth, config.WithRecheck(false), config.WithDomain("example.com"))

	v.Cache().MarkValid(cfg.License, "example.com")

	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Equal(t, []State{StateStart, StateCacheCheck, StateCachedOK, StateDone}, res.Trace)
	assert.Equal(t, map[string]interface{}{"cached": true, "message": CachedMessage}, res.Payload())
	auth.AssertNotCalled(t, "CheckWithLicenseKey")
}

func TestValidateCacheMissThenHit(t *testing.T) {
	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(), nil).Once()

	v, _ := newTestValidator(t, auth, config.WithRecheck(false))
	ctx := context.Background()

	first, err := v.Validate(ctx, identity.Hints{})
	require.NoError(t, err)
	assert.Equal(t, []State{StateStart, StateCacheCheck, StateRemoteCheck, StateValidated, StateDone}, first.Trace)

	second, err := v.Validate(ctx, identity.Hints{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Identity, second.Identity)

	auth.AssertNumberOfCalls(t, "CheckWithLicenseKey", 1)
}

func TestValidateRecheckIgnoresCache(t *testing.T) {
	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(), nil).Twice()

	v, _ := newTestValidator(t, auth, config.WithRecheck(true))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := v.Validate(ctx, identity.Hints{})
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	auth.AssertExpectations(t)
}

func TestValidateRequiresLicense(t *testing.T) {
	auth := &MockAuthority{}
	cfg, err := config.New(
		config.WithAPIKey("api-key"),
		config.WithSecret(testSecret),
		config.WithCachePath(t.TempDir()),
	)
	require.NoError(t, err)
	v, err := NewValidator(cfg, auth)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), identity.Hints{})
	var failure *apperrors.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, apperrors.KindConfiguration, failure.Kind)
	assert.True(t, failure.Fatal())
	assert.True(t, errors.Is(err, apperrors.ErrLicenseRequired))
	assert.Equal(t, []State{StateStart, StateRejected}, res.Trace)
	auth.AssertNotCalled(t, "CheckWithLicenseKey")
}

func TestValidateRemoteErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind apperrors.Kind
		wantMsg  string
	}{
		{
			name:     "transport",
			err:      apperrors.NewTransportError("POST", "https://api/project/has-paid", context.DeadlineExceeded),
			wantKind: apperrors.KindTransport,
			wantMsg:  "timed out",
		},
		{
			name:     "api",
			err:      apperrors.NewAPIError(403, map[string]interface{}{"message": "License revoked"}, "API Request Failed"),
			wantKind: apperrors.KindAPI,
			wantMsg:  "License revoked",
		},
		{
			name:     "unexpected",
			err:      errors.New("boom"),
			wantKind: apperrors.KindUnexpected,
			wantMsg:  "Unexpected error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &MockAuthority{}
			auth.On("CheckWithLicenseKey").Return(nil, tt.err).Once()

			v, cfg := newTestValidator(t, auth)
			res, err := v.Validate(context.Background(), identity.Hints{})

			var failure *apperrors.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.wantKind, failure.Kind)
			assert.Contains(t, failure.Message, tt.wantMsg)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, StateRejected, res.State())
			assert.NoFileExists(t, v.Cache().Path(cfg.License, res.Identity.Value))
		})
	}
}

func TestValidateUsesRequestHintsForIdentity(t *testing.T) {
	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(), nil).Once()

	v, cfg := newTestValidator(t, auth)
	res, err := v.Validate(context.Background(), identity.Hints{Host: "Shop.Example.com:8443"})
	require.NoError(t, err)

	assert.Equal(t, identity.Identity{Value: "shop.example.com", Source: identity.SourceHost}, res.Identity)
	assert.FileExists(t, v.Cache().Path(cfg.License, "shop.example.com"))
}

func TestValidateProcessesInjectables(t *testing.T) {
	dest := t.TempDir()
	good := sealedItem(t, "1", "banner.html", "<b>licensed</b>")
	bad := sealedItem(t, "2", "bad.html", "tampered")
	bad.Signature = security.Sign("something else", testSecret)

	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(good, bad), nil).Once()

	v, _ := newTestValidator(t, auth,
		config.WithInjectables(true, true),
		config.WithInjectablesPath(dest),
	)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)

	assert.Equal(t, []State{StateStart, StateRemoteCheck, StateValidated, StateInject, StateDone}, res.Trace)
	require.NotNil(t, res.Injectables)
	assert.Equal(t, 1, res.Injectables.Succeeded())
	failed := res.Injectables.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, injectable.StatusVerificationFailed, failed[0].Status)

	data, err := os.ReadFile(filepath.Join(dest, "banner.html"))
	require.NoError(t, err)
	assert.Equal(t, "<b>licensed</b>", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "bad.html"))
}

func TestValidateRelativeInjectablesPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	root := t.TempDir()
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(sealedItem(t, "1", "app.env", "MODE=paid")), nil).Once()

	v, _ := newTestValidator(t, auth,
		config.WithInjectables(true, true),
		config.WithInjectablesPath("./injected"),
	)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)
	require.NotNil(t, res.Injectables)
	require.NoError(t, res.Injectables.Err())

	data, err := os.ReadFile(filepath.Join(root, "injected", "app.env"))
	require.NoError(t, err)
	assert.Equal(t, "MODE=paid", string(data))
}

func TestValidateSkipsInjectablesWhenNotHandled(t *testing.T) {
	dest := t.TempDir()
	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(sealedItem(t, "1", "x.txt", "x")), nil).Once()

	v, _ := newTestValidator(t, auth,
		config.WithInjectables(true, false),
		config.WithInjectablesPath(dest),
	)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)

	assert.NotContains(t, res.Trace, StateInject)
	assert.Nil(t, res.Injectables)
	assert.NoFileExists(t, filepath.Join(dest, "x.txt"))
}

func TestValidateCustomProcessor(t *testing.T) {
	var got []string
	processor := injectable.ProcessorFunc(func(ctx context.Context, item injectable.Injectable, content []byte, target string) error {
		got = append(got, string(content))
		return nil
	})

	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(sealedItem(t, "1", "a.txt", "alpha")), nil).Once()

	v, _ := newTestValidator(t, auth,
		config.WithInjectables(true, true),
		config.WithInjectablesProcessor(processor),
	)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha"}, got)
	assert.Equal(t, injectable.StatusDelegated, res.Injectables.Results[0].Status)
}

func TestValidatorWithMetrics(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	auth := &MockAuthority{}
	auth.On("CheckWithLicenseKey").Return(paid(), nil).Once()

	cfg, err := config.New(
		config.WithLicense("lic-abcdef123456"),
		config.WithSecret(testSecret),
		config.WithCachePath(t.TempDir()),
		config.WithRecheck(false),
	)
	require.NoError(t, err)

	v, err := NewValidator(cfg, auth, WithMetrics(metrics))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)
	res, err := v.Validate(context.Background(), identity.Hints{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestValidateLogsMaskedLicenseOnly(t *testing.T) {
	const licenseKey = "lic-abcdef123456"

	tests := []struct {
		name   string
		status *client.PaymentStatus
		result string
	}{
		{"validated", paid(), "license validated"},
		{"rejected", &client.PaymentStatus{}, "license rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &MockAuthority{}
			auth.On("CheckWithLicenseKey").Return(tt.status, nil).Once()

			cfg, err := config.New(
				config.WithBaseURL("https://api.devpayr.test/api/v1/"),
				config.WithLicense(licenseKey),
				config.WithSecret(testSecret),
				config.WithCachePath(t.TempDir()),
			)
			require.NoError(t, err)

			capture := testutil.NewLogCapture()
			v, err := NewValidator(cfg, auth, WithLogger(capture.Logger()))
			require.NoError(t, err)

			_, _ = v.Validate(context.Background(), identity.Hints{})

			assert.True(t, capture.ContainsMessage(tt.result))
			assert.True(t, capture.ContainsAttr("license_key_masked", "lic-****3456"))
			assert.True(t, capture.ContainsAttr("component", "license_validator"))
			text := capture.Text()
			assert.NotContains(t, text, licenseKey)
			assert.NotContains(t, text, testSecret)
		})
	}
}
