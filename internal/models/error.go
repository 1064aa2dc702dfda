package models

import "errors"

// Sentinel errors for common failure conditions. Challenge verification
// failures are not errors; they surface as verified=false with a reason
// code on the verification result.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStoreUnavailable indicates the backing store could not be reached.
	// Gate-check paths translate this into a fail-open default rather than
	// denying legitimate users.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrInvalidIdentifierType is a programmer error, not a security event
	ErrInvalidIdentifierType = errors.New("invalid identifier type")
)
