package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrPinMismatch is returned when no certificate in the verified chain
// matches a configured pin.
var ErrPinMismatch = errors.New("certificate pin verification failed")

// CertificatePinner checks the authority's certificate chain against a set
// of SHA-256 SPKI hashes (hex).
type CertificatePinner struct {
	pins map[string]struct{}
}

// NewCertificatePinner normalizes pins; blank entries are ignored.
func NewCertificatePinner(pins []string) *CertificatePinner {
	cp := &CertificatePinner{pins: make(map[string]struct{}, len(pins))}
	for _, p := range pins {
		p = strings.ToLower(strings.TrimSpace(p))
		p = strings.TrimPrefix(p, "sha256/")
		if p != "" {
			cp.pins[p] = struct{}{}
		}
	}
	return cp
}

// Enabled reports whether any pin is configured
func (cp *CertificatePinner) Enabled() bool { return len(cp.pins) > 0 }

// VerifyPeerCertificate is a tls.Config hook. It runs after normal chain
// verification, so any certificate of the chain (leaf or CA) may match.
func (cp *CertificatePinner) VerifyPeerCertificate(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	if !cp.Enabled() {
		return nil
	}
	if len(verifiedChains) == 0 {
		return errors.New("no verified certificate chains")
	}

	for _, chain := range verifiedChains {
		for _, cert := range chain {
			if _, ok := cp.pins[SPKIHash(cert)]; ok {
				return nil
			}
		}
	}

	host := verifiedChains[0][0].Subject.CommonName
	if len(verifiedChains[0][0].DNSNames) > 0 {
		host = verifiedChains[0][0].DNSNames[0]
	}
	return fmt.Errorf("%w for %s", ErrPinMismatch, host)
}

// Apply installs the pin check on hc's transport. The transport is cloned
// so a shared client is never modified. Non-*http.Transport round
// trippers are returned unchanged.
func (cp *CertificatePinner) Apply(hc *http.Client) *http.Client {
	if !cp.Enabled() || hc == nil {
		return hc
	}

	var transport *http.Transport
	switch t := hc.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		transport = t.Clone()
	default:
		return hc
	}

	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	transport.TLSClientConfig.VerifyPeerCertificate = cp.VerifyPeerCertificate

	pinned := *hc
	pinned.Transport = transport
	return &pinned
}

// SPKIHash returns the hex SHA-256 of the certificate's Subject Public Key Info
func SPKIHash(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}
