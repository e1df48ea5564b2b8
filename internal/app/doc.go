// Package app wires the DevPayr agent into an HTTP server for `devpayr serve`.
//
// Every component is built once in NewApplication: the authority client,
// the license validator, the failure policy and the license gate. The router
// applies middleware in this order:
//
//	RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders → RateLimit → LicenseGate
//
// Health, version, metrics and /api/license routes bypass the gate.
//
// Run blocks until SIGINT or SIGTERM, then shuts down the server and flushes
// OpenTelemetry. The package never calls os.Exit.
package app
