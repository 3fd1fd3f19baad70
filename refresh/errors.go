package refresh

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers unknown, malformed, expired and concurrently
	// consumed tokens.
	ErrInvalidToken = errors.New("refresh: invalid refresh token")
	// ErrTokenExpired is returned for records past their expiry.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
	// ErrTokenReused signals a revoked token was presented again. The family
	// has been revoked by the time it is returned.
	ErrTokenReused = errors.New("refresh: refresh token reuse detected")
	// ErrOwnershipMismatch is returned when the token belongs to another user.
	ErrOwnershipMismatch = errors.New("refresh: token does not belong to user")
	// ErrUserIDRequired is returned by Generate for an empty user id.
	ErrUserIDRequired = errors.New("refresh: user id is required")

	// ErrNotFound is returned by stores when no record matches a hash.
	ErrNotFound = errors.New("refresh: record not found")
	// ErrAlreadyRevoked is returned by Rotator implementations when the
	// conditional revoke of the presented record lost a race.
	ErrAlreadyRevoked = errors.New("refresh: record already revoked")
	// ErrDuplicate is returned when a record with the same hash exists.
	ErrDuplicate = errors.New("refresh: duplicate token hash")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh: store unavailable")
)
