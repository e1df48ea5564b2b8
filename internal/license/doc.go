// Package license decides whether the running copy of the host application
// is licensed.
//
// # Validation flow
//
// Validator.Validate walks a small state machine:
//
//	START -> CACHE_CHECK -> (CACHED_OK | REMOTE_CHECK) -> (VALIDATED | REJECTED) -> (INJECT | DONE)
//
// START requires a license key. CACHE_CHECK is skipped when Recheck is set;
// otherwise a same-day cache entry ends the walk at CACHED_OK without any
// network traffic. REMOTE_CHECK asks the authority whether the project is
// paid. A paid verdict writes the cache and, when injectable handling is
// enabled and the response carried injectables, hands them to the
// injectable pipeline. Everything else ends at REJECTED.
//
// The walk always produces a *Result whose Trace lists the visited states.
// Rejections additionally return a *errors.Failure; presentation of that
// failure belongs to package failure.
//
// # Cache
//
// Cache is a file-per-key, date-granularity memo stored under the cache
// directory as <sha256(license::identity)>.txt containing YYYY-MM-DD. Read
// and write errors are logged and otherwise ignored.
//
// # Observability
//
// Validations are traced with OpenTelemetry (tracer "devpayr-license") and
// counted with the meter passed to NewMetrics. License keys only appear in
// logs masked or hashed.
package license
