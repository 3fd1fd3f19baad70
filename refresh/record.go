package refresh

import (
	"context"
	"time"
)

// Record is the persisted form of one refresh token.
type Record struct {
	TokenHash  string
	UserID     string
	FamilyID   string
	Generation int
	Revoked    bool
	RevokedAt  time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ClientIP   string
	UserAgent  string
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists refresh records.
//
// Implementations must index records by family id and by user id so that
// RevokeFamily and RevokeAllByUser do not scan every record.
type Store interface {
	// FindByHash returns ErrNotFound when no record exists.
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)
	Create(ctx context.Context, rec Record) error
	// RevokeByHash revokes a record only if it is active. It reports whether
	// this call performed the transition. A missing record yields false, nil.
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// DeleteExpired removes records with ExpiresAt <= now, revoked or not.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Rotator is implemented by stores that can revoke the presented record and
// insert its successor as one atomic unit.
//
// Rotate returns ErrNotFound when oldHash does not exist and
// ErrAlreadyRevoked when it was not active; in both cases next is not stored.
type Rotator interface {
	Rotate(ctx context.Context, oldHash string, next Record, at time.Time) error
}
