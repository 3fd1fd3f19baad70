package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/refresh"
)

// DefaultPrefix namespaces keys when New gets an empty prefix.
const DefaultPrefix = "authcore"

const pruneBatch = 500

// Store is a Redis-backed refresh.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var (
	_ refresh.Store   = (*Store)(nil)
	_ refresh.Rotator = (*Store)(nil)
)

// New returns a Store using client. Keys are namespaced by prefix, which
// is wrapped in a hash tag unless it already carries one, so the scripts
// only ever touch keys of a single cluster slot.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: hashTag(prefix)}
}

func hashTag(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 {
		if end := strings.IndexByte(prefix[open+1:], '}'); end > 0 {
			return prefix
		}
	}
	return "{" + prefix + "}"
}

func (s *Store) recordPrefix() string { return s.prefix + ":rt:" }
func (s *Store) familyPrefix() string { return s.prefix + ":fam:" }
func (s *Store) userPrefix() string { return s.prefix + ":usr:" }
func (s *Store) recordKey(hash string) string { return s.recordPrefix() + hash }
func (s *Store) familyKey(id string) string { return s.familyPrefix() + id }
func (s *Store) userKey(id string) string { return s.userPrefix() + id }
func (s *Store) expiryKey() string { return s.prefix + ":exp" }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
}

func (s *Store) FindByHash(ctx context.Context, tokenHash string) (*refresh.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(tokenHash)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, refresh.ErrNotFound
	}
	return decodeRecord(tokenHash, fields)
}

func (s *Store) Create(ctx context.Context, rec refresh.Record) error {
	created, err := createLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.TokenHash), s.familyKey(rec.FamilyID), s.userKey(rec.UserID), s.expiryKey()},
		recordArgs(rec)...,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return refresh.ErrDuplicate
	}
	return nil
}

func (s *Store) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(tokenHash)}, at.UnixMilli()).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *Store) Rotate(ctx context.Context, oldHash string, next refresh.Record, at time.Time) error {
	args := append([]any{at.UnixMilli()}, recordArgs(next)...)
	status, err := rotateLua.Run(ctx, s.redis,
		[]string{
			s.recordKey(oldHash),
			s.recordKey(next.TokenHash),
			s.familyKey(next.FamilyID),
			s.userKey(next.UserID),
			s.expiryKey(),
		},
		args...,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return refresh.ErrNotFound
	case rotateStatusAlreadyRevoked:
		return refresh.ErrAlreadyRevoked
	case rotateStatusDuplicateTarget:
		return refresh.ErrDuplicate
	default:
		return fmt.Errorf("redis: unexpected rotate status %d", status)
	}
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return s.revokeSet(ctx, s.familyKey(familyID), at)
}

func (s *Store) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return s.revokeSet(ctx, s.userKey(userID), at)
}

func (s *Store) revokeSet(ctx context.Context, setKey string, at time.Time) (int64, error) {
	n, err := revokeSetLua.Run(ctx, s.redis, []string{setKey}, s.recordPrefix(), at.UnixMilli()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// DeleteExpired removes expired records in batches until none remain.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		n, err := deleteExpiredLua.Run(ctx, s.redis, []string{s.expiryKey()},
			now.UnixMilli(), s.recordPrefix(), s.familyPrefix(), s.userPrefix(), pruneBatch,
		).Int64()
		if err != nil {
			return total, unavailable(err)
		}
		total += n
		if n < pruneBatch {
			return total, nil
		}
	}
}

func recordArgs(rec refresh.Record) []any {
	return []any{
		rec.TokenHash,
		rec.UserID,
		rec.FamilyID,
		rec.Generation,
		rec.ExpiresAt.UnixMilli(),
		rec.CreatedAt.UnixMilli(),
		rec.ClientIP,
		rec.UserAgent,
	}
}

func decodeRecord(hash string, f map[string]string) (*refresh.Record, error) {
	gen, err := strconv.Atoi(f["generation"])
	if err != nil {
		return nil, fmt.Errorf("redis: corrupt record generation: %w", err)
	}
	expires, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: corrupt record expiry: %w", err)
	}
	created, _ := strconv.ParseInt(f["created_at"], 10, 64)
	revokedAt, _ := strconv.ParseInt(f["revoked_at"], 10, 64)

	rec := &refresh.Record{
		TokenHash:  hash,
		UserID:     f["user_id"],
		FamilyID:   f["family_id"],
		Generation: gen,
		Revoked:    f["revoked"] == "1",
		ExpiresAt:  time.UnixMilli(expires).UTC(),
		CreatedAt:  time.UnixMilli(created).UTC(),
		ClientIP:   f["ip"],
		UserAgent:  f["ua"],
	}
	if rec.Revoked && revokedAt > 0 {
		rec.RevokedAt = time.UnixMilli(revokedAt).UTC()
	}
	return rec, nil
}
