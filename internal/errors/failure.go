package errors

import (
	"errors"
)

// Kind tags a failure for the failure policy.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindAPI           Kind = "api"
	KindUnpaid        Kind = "unpaid"
	KindVerification  Kind = "verification"
	KindDecryption    Kind = "decryption"
	KindCacheIO       Kind = "cache_io"
	KindUnexpected    Kind = "unexpected"
)

// Failure is the single tagged value the validator surfaces; presentation
// is decided elsewhere.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Fatal reports whether bootstrap must stop rather than route to the policy.
func (f *Failure) Fatal() bool { return f.Kind == KindConfiguration }

// KindOf classifies err against the taxonomy.
func KindOf(err error) Kind {
	var (
		failure *Failure
		cfgErr  *ConfigurationError
		trErr   *TransportError
		apiErr  *APIError
		verErr  *VerificationError
		decErr  *DecryptionError
		ioErr   *CacheIOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &failure):
		return failure.Kind
	case errors.As(err, &cfgErr),
		errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrMissingSecret),
		errors.Is(err, ErrLicenseRequired):
		return KindConfiguration
	case errors.As(err, &trErr):
		return KindTransport
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.Is(err, ErrProjectUnpaid):
		return KindUnpaid
	case errors.As(err, &verErr), errors.Is(err, ErrSignatureMismatch):
		return KindVerification
	case errors.As(err, &decErr), errors.Is(err, ErrDecryptionFailed):
		return KindDecryption
	case errors.As(err, &ioErr):
		return KindCacheIO
	default:
		return KindUnexpected
	}
}

// AsFailure wraps err into a Failure, keeping the underlying message.
// Unclassified errors get the "Unexpected error: " prefix.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	kind := KindOf(err)
	message := err.Error()
	if kind == KindUnexpected {
		message = "Unexpected error: " + message
	}
	return &Failure{Kind: kind, Message: message, Err: err}
}
