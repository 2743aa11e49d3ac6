package state

import "errors"

// Domain errors for the state package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, state.ErrStorageUnavailable) {
//	    // report a server error, do not retry
//	}
var (
	// ErrNotConfigured is returned by every operation when the store was
	// constructed without a usable tree (missing or invalid credentials).
	ErrNotConfigured = errors.New("state: store not configured")

	// ErrStorageUnavailable is returned when the tree cannot be read or written.
	ErrStorageUnavailable = errors.New("state: storage unavailable")

	// ErrUnknownDevice is returned when a device token is neither a known
	// device key nor an all-devices token.
	ErrUnknownDevice = errors.New("state: unknown device")

	// ErrInvalidState is returned when a requested value is not a strict boolean.
	ErrInvalidState = errors.New("state: state must be a boolean")

	// ErrInvalidCatalog is returned when a device key list cannot be used.
	ErrInvalidCatalog = errors.New("state: invalid device catalog")
)
