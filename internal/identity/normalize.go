package identity

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	hostnamePattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	portSuffix      = regexp.MustCompile(`:\d+$`)
)

const maxHostnameLength = 253

// Normalize reduces raw to a bare lowercase host. It reports false when the
// result is not localhost, an IP literal or a well-formed hostname.
// Normalize is idempotent on accepted values.
func Normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			return "", false
		}
		s = u.Hostname()
	} else {
		s = stripHostSuffixes(s)
	}

	if s == "" {
		return "", false
	}
	if s == "localhost" || net.ParseIP(s) != nil {
		return s, true
	}
	if len(s) <= maxHostnameLength && hostnamePattern.MatchString(s) {
		return s, true
	}
	return "", false
}

// stripHostSuffixes removes path, query, fragment and port from a
// scheme-less host value.
func stripHostSuffixes(s string) string {
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			return s[1:end]
		}
		return ""
	}
	if net.ParseIP(s) != nil {
		return s
	}
	return portSuffix.ReplaceAllString(s, "")
}
