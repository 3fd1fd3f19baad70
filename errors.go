package authcore

import "errors"

// Engine operations return these errors, usually wrapping the internal cause
// so errors.Is also matches the jwt, refresh and keys sentinels.
var (
	// ErrUnauthenticated covers invalid, expired, unknown and foreign tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionRevoked is returned when a session was revoked for security
	// reasons: refresh-token reuse, or a user that is no longer active.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrUnavailable is returned when key material or the refresh store
	// cannot be reached.
	ErrUnavailable = errors.New("authentication backend unavailable")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound may be returned by a UserProvider for unknown users.
	// The engine treats it like an inactive account.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRequest is returned for empty user ids and similar caller
	// mistakes.
	ErrInvalidRequest = errors.New("invalid request")
)
