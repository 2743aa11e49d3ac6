package firebase

import "errors"

// Domain-specific errors for Realtime Database access.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConfigured is returned by Connect when the database URL or the
	// service-account credentials are missing.
	ErrNotConfigured = errors.New("firebase: not configured")

	// ErrInvalidCredentials is returned by Connect when the service-account
	// key cannot be parsed.
	ErrInvalidCredentials = errors.New("firebase: invalid service account credentials")

	// ErrUnauthorized is returned when the token exchange fails or the
	// database rejects the access token.
	ErrUnauthorized = errors.New("firebase: request unauthorized")

	// ErrRequestFailed is returned for transport failures and non-2xx responses.
	ErrRequestFailed = errors.New("firebase: request failed")
)
