// Package config holds the DevPayr agent configuration.
//
// # Configuration Sources
//
// Configuration is assembled in the following order, later sources winning:
//
//  1. Default values (Default)
//  2. YAML file (devpayr.yaml, configs/devpayr.yaml or $DEVPAYR_CONFIG)
//  3. Environment variables with the DEVPAYR_ prefix
//  4. Functional options when the host builds the config in code (New)
//
// # Environment Variables
//
//	DEVPAYR_LICENSE=019ae9f4-18b2-706b-b728-3f77c6bd9217
//	DEVPAYR_SECRET=...
//	DEVPAYR_DOMAIN=yourapp.com
//	DEVPAYR_RECHECK=false
//	DEVPAYR_INVALID_BEHAVIOR=log
//	DEVPAYR_TIMEOUT=10s
//	DEVPAYR_TELEMETRY_METRIC_EXPORTER=none
//
// # Validation
//
// A configuration is rejected with a ConfigurationError unless it carries a
// license or an API key and a secret. Enumerated fields are checked with
// go-playground/validator.
//
// # Paths
//
// ResolveCacheDir turns the configured cachePath into an absolute directory,
// defaulting to .devpayr-cache under the working directory. The same
// directory holds the identity fingerprint and the daily validation markers.
package config
