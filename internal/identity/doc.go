// Package identity derives the stable name a deployment presents to the
// DevPayr authority.
//
// Candidates are tried in order: the configured domain, the request domain
// override header, the Host header, the TLS server name, the APP_URL
// environment variable. Each is normalized (scheme, port and path stripped,
// lowercased) and must be localhost, an IP literal or a hostname with an
// alphabetic top-level label. When none qualifies the resolver falls back to
// a random fingerprint persisted under the cache directory, so resolution
// never fails.
package identity
