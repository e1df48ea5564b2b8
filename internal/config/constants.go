package config

import "time"

// Application constants for the DevPayr runtime agent
const (
	// SDK info
	AppName    = "devpayr-go"
	AppVersion = "1.0.0"

	// Remote authority
	DefaultBaseURL     = "https://api.devpayr.dev/api/v1/"
	DefaultAction      = "check_project"
	DefaultRedirectURL = "https://devpayr.com/upgrade"
	DefaultTimeout     = 10 * time.Second
	DomainHeader       = "X-Devpayr-Domain"
	LicenseHeader      = "X-LICENSE-KEY"
	APIKeyHeader       = "X-API-KEY"

	// Failure presentation
	DefaultInvalidMessage = "This copy is not licensed for production use."

	// Local state
	DefaultCacheDirName = ".devpayr-cache"
	FingerprintFileName = "fingerprint.txt"
	CacheDateLayout     = "2006-01-02"

	// Environment
	EnvPrefix    = "DEVPAYR"
	EnvAppURL    = "APP_URL"
	EnvConfigKey = "DEVPAYR_CONFIG"

	// Outbound request budget (requests per second / burst)
	DefaultRequestRate  = 5
	DefaultRequestBurst = 10
)

// Failure modes understood by the failure policy.
const (
	BehaviorModal    = "modal"
	BehaviorRedirect = "redirect"
	BehaviorLog      = "log"
	BehaviorSilent   = "silent"
)
