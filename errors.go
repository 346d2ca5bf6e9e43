package rxseal

import (
	"errors"

	"github.com/hengadev/rxseal/internal/auth"
	"github.com/hengadev/rxseal/internal/kex"
	"github.com/hengadev/rxseal/internal/prescription"
	"github.com/hengadev/rxseal/internal/validation"
)

var (
	// Key exchange errors
	ErrNotInitialized   = kex.ErrNotInitialized
	ErrSessionExpired   = kex.ErrSessionExpired
	ErrInvalidPublicKey = kex.ErrInvalidPublicKey
	ErrInvalidSessionID = kex.ErrInvalidSessionID
	ErrUnknownGroup     = kex.ErrUnknownGroup
	ErrTooManySessions  = kex.ErrTooManySessions

	// Prescription errors
	ErrMissingField      = prescription.ErrMissingField
	ErrRevokedRecord     = prescription.ErrRevokedRecord
	ErrNotFound          = prescription.ErrNotFound
	ErrForbidden         = prescription.ErrForbidden
	ErrDecryptionFailure = prescription.ErrDecryptionFailure
	ErrInvalidSignature  = prescription.ErrInvalidSignature

	// Request errors
	ErrInvalidPayload = validation.ErrInvalidPayload
	ErrUnauthorized   = errors.New("unauthorized")

	// Service errors
	ErrInvalidConfiguration     = errors.New("invalid configuration")
	ErrSecretStorageUnavailable = errors.New("secret storage unavailable")
	ErrSecretNotFound           = errors.New("secret not found")
)

// IsClientError reports whether err was caused by the caller's input or
// permissions rather than by the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidPublicKey) ||
		errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrUnknownGroup) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrRevokedRecord) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		IsAuthError(err)
}

// IsCryptoError reports whether err signals unreadable or tampered data.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrDecryptionFailure) ||
		errors.Is(err, ErrInvalidSignature)
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, auth.ErrMissingToken) ||
		errors.Is(err, auth.ErrInvalidToken)
}

// IsConfigurationError reports whether err is a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrSecretNotFound)
}
