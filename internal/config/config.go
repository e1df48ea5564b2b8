package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/injectable"
)

// Config represents the complete agent configuration
type Config struct {
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	License string `yaml:"license" envconfig:"LICENSE"`
	APIKey  string `yaml:"api_key" envconfig:"API_KEY"`
	Secret  string `yaml:"secret" envconfig:"SECRET"`
	Domain  string `yaml:"domain" envconfig:"DOMAIN"`

	Recheck           bool   `yaml:"recheck" envconfig:"RECHECK"`
	Injectables       bool   `yaml:"injectables" envconfig:"INJECTABLES"`
	HandleInjectables bool   `yaml:"handle_injectables" envconfig:"HANDLE_INJECTABLES"`
	InjectablesPath   string `yaml:"injectables_path" envconfig:"INJECTABLES_PATH"`
	InjectablesVerify bool   `yaml:"injectables_verify" envconfig:"INJECTABLES_VERIFY"`
	// Concurrency bounds parallel injectable processing; 1 keeps arrival order.
	InjectablesConcurrency int `yaml:"injectables_concurrency" envconfig:"INJECTABLES_CONCURRENCY" validate:"gte=1"`
	// InjectablesProcessor replaces the default file writer. Code only.
	InjectablesProcessor injectable.Processor `yaml:"-" ignored:"true" validate:"-"`

	Timeout time.Duration     `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	Action  string            `yaml:"action" envconfig:"ACTION" validate:"required"`
	PerPage int               `yaml:"per_page" envconfig:"PER_PAGE" validate:"gte=0"`
	Query   map[string]string `yaml:"query" envconfig:"QUERY"`

	InvalidBehavior      string `yaml:"invalid_behavior" envconfig:"INVALID_BEHAVIOR" validate:"oneof=modal redirect log silent"`
	RedirectURL          string `yaml:"redirect_url" envconfig:"REDIRECT_URL" validate:"omitempty,url"`
	CustomInvalidView    string `yaml:"custom_invalid_view" envconfig:"CUSTOM_INVALID_VIEW"`
	CustomInvalidMessage string `yaml:"custom_invalid_message" envconfig:"CUSTOM_INVALID_MESSAGE"`

	CachePath string `yaml:"cache_path" envconfig:"CACHE_PATH"`

	// PinnedCertificates are hex SHA-256 SPKI hashes; when set the
	// authority's chain must contain one of them.
	PinnedCertificates []string `yaml:"pinned_certificates" envconfig:"PINNED_CERTIFICATES" validate:"dive,hexadecimal"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// RateLimitConfig bounds outbound calls to the authority
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"omitempty,oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"omitempty,oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"omitempty,oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig is only used by the demo server (devpayr serve)
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		BaseURL:                DefaultBaseURL,
		Recheck:                true,
		Injectables:            true,
		HandleInjectables:      false,
		InjectablesVerify:      true,
		InjectablesConcurrency: 1,
		Timeout:                DefaultTimeout,
		Action:                 DefaultAction,
		InvalidBehavior:        BehaviorModal,
		CustomInvalidMessage:   DefaultInvalidMessage,
		RateLimit: RateLimitConfig{
			RPS:   DefaultRequestRate,
			Burst: DefaultRequestBurst,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "console",
		},
		Telemetry: TelemetryConfig{
			Environment:    "production",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// DEVPAYR_* environment, then applies opts. An empty path searches the
// usual locations.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New builds a configuration in code. Options are applied over Default.
func New(opts ...Option) (*Config, error) {
	cfg := Default()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes YAML on top of cfg so absent keys keep their defaults
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	c.License = strings.TrimSpace(c.License)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.InvalidBehavior = strings.ToLower(strings.TrimSpace(c.InvalidBehavior))
	if c.InjectablesConcurrency < 1 {
		c.InjectablesConcurrency = 1
	}
}

var validate = validator.New()

// Validate checks credentials first, then the tagged constraints.
// Every failure is a *errors.ConfigurationError.
func (c *Config) Validate() error {
	if c.License == "" && c.APIKey == "" {
		return &apperrors.ConfigurationError{Field: "license", Err: apperrors.ErrMissingCredential}
	}
	if strings.TrimSpace(c.Secret) == "" {
		return &apperrors.ConfigurationError{Field: "secret", Err: apperrors.ErrMissingSecret}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &apperrors.ConfigurationError{
				Field: fe.Namespace(),
				Err:   fmt.Errorf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &apperrors.ConfigurationError{Err: err}
	}
	return nil
}

// UsesLicense reports whether runtime validation runs in license-key mode.
func (c *Config) UsesLicense() bool {
	return c.License != ""
}

// InvalidMessage is the message shown to users when validation fails.
func (c *Config) InvalidMessage() string {
	if strings.TrimSpace(c.CustomInvalidMessage) != "" {
		return c.CustomInvalidMessage
	}
	return DefaultInvalidMessage
}

// RedirectTarget returns the configured redirect or the upgrade page.
func (c *Config) RedirectTarget() string {
	if c.RedirectURL != "" {
		return c.RedirectURL
	}
	return DefaultRedirectURL
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if env := os.Getenv(EnvConfigKey); env != "" {
		return env
	}

	locations := []string{
		"devpayr.yaml",
		"configs/devpayr.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // env vars only
}
