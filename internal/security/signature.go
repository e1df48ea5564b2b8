package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of content keyed by secret.
func Sign(content, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time. Hex case
// in the supplied signature is ignored.
func Verify(content, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected, err := hex.DecodeString(Sign(content, secret))
	if err != nil {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return SecureCompare(expected, given)
}
