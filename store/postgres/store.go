// Package postgres implements refresh.Store and refresh.Rotator on
// PostgreSQL through database/sql and the pgx driver. The schema ships as
// embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/dbx"
	"github.com/MrEthical07/authcore/refresh"
)

// Store is a PostgreSQL-backed refresh.Store.
type Store struct {
	db *sql.DB
}

var (
	_ refresh.Store   = (*Store)(nil)
	_ refresh.Rotator = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
}

const selectRecord = `
	SELECT token_hash, user_id, family_id, generation, is_revoked, revoked_at,
	       expires_at, created_at, client_ip, user_agent
	FROM refresh_tokens
	WHERE token_hash = $1
`

func (s *Store) FindByHash(ctx context.Context, tokenHash string) (*refresh.Record, error) {
	var (
		rec       refresh.Record
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectRecord, tokenHash).Scan(
		&rec.TokenHash, &rec.UserID, &rec.FamilyID, &rec.Generation, &rec.Revoked, &revokedAt,
		&rec.ExpiresAt, &rec.CreatedAt, &rec.ClientIP, &rec.UserAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, unavailable(err)
	}
	if revokedAt.Valid {
		rec.RevokedAt = revokedAt.Time
	}
	return &rec, nil
}

const insertRecord = `
	INSERT INTO refresh_tokens
	    (token_hash, user_id, family_id, generation, expires_at, created_at, client_ip, user_agent)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (token_hash) DO NOTHING
`

func (s *Store) Create(ctx context.Context, rec refresh.Record) error {
	return insert(ctx, s.db, rec)
}

func insert(ctx context.Context, db dbx.DBTX, rec refresh.Record) error {
	res, err := db.ExecContext(ctx, insertRecord,
		rec.TokenHash, rec.UserID, rec.FamilyID, rec.Generation,
		rec.ExpiresAt, rec.CreatedAt, rec.ClientIP, rec.UserAgent,
	)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return refresh.ErrDuplicate
	}
	return nil
}

const revokeActive = `
	UPDATE refresh_tokens
	SET is_revoked = TRUE, revoked_at = $2
	WHERE token_hash = $1 AND is_revoked = FALSE
`

func (s *Store) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	n, err := execCount(ctx, s.db, revokeActive, tokenHash, at)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const existsRecord = `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`

// Rotate runs the conditional revoke and the insert in one transaction.
func (s *Store) Rotate(ctx context.Context, oldHash string, next refresh.Record, at time.Time) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := execCount(ctx, tx, revokeActive, oldHash, at)
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, existsRecord, oldHash).Scan(&exists); err != nil {
				return unavailable(err)
			}
			if !exists {
				return refresh.ErrNotFound
			}
			return refresh.ErrAlreadyRevoked
		}
		return insert(ctx, tx, next)
	})
}

const revokeFamily = `
	UPDATE refresh_tokens
	SET is_revoked = TRUE, revoked_at = $2
	WHERE family_id = $1 AND is_revoked = FALSE
`

func (s *Store) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return execCount(ctx, s.db, revokeFamily, familyID, at)
}

const revokeUser = `
	UPDATE refresh_tokens
	SET is_revoked = TRUE, revoked_at = $2
	WHERE user_id = $1 AND is_revoked = FALSE
`

func (s *Store) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return execCount(ctx, s.db, revokeUser, userID, at)
}

const deleteExpired = `DELETE FROM refresh_tokens WHERE expires_at <= $1`

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, s.db, deleteExpired, now)
}

func execCount(ctx context.Context, db dbx.DBTX, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
