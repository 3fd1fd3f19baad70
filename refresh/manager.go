package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/reqmeta"
)

// DefaultTTL is the refresh-token lifetime used when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultRotationGrace is used when Config.RotationGrace is zero.
const DefaultRotationGrace = 5 * time.Second

// ReuseEvent describes a detected replay of a revoked token.
type ReuseEvent struct {
	UserID     string
	FamilyID   string
	Generation int
	// Revoked counts records revoked by the family sweep.
	Revoked int64
	Err     error
}

// Config configures a Manager.
type Config struct {
	TTL    time.Duration
	Logger *slog.Logger
	Clock  func() time.Time
	// OnReuse is called synchronously after a family has been revoked
	// because of a replayed token.
	OnReuse func(context.Context, ReuseEvent)
	// RotationGrace is how long a token rotated by this Manager is answered
	// with ErrInvalidToken instead of being treated as reuse. It covers
	// callers of the same burst that arrive after the winner returned.
	// Negative disables the window.
	RotationGrace time.Duration
}

// Issued is a freshly minted refresh token. Token is the only copy of the
// raw value.
type Issued struct {
	Token      string
	FamilyID   string
	Generation int
	ExpiresAt  time.Time
}

// Manager implements generate, rotate, validate and revoke on top of a Store.
type Manager struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	log     logging.Logger
	onReuse func(context.Context, ReuseEvent)
	grace   time.Duration

	// inflight holds hashes with a rotation running in this process.
	inflight sync.Map
	// rotated maps hashes this process rotated to the rotation time.
	rotated   sync.Map
	lastSweep atomic.Int64
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh: store is required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("refresh: invalid TTL configuration")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RotationGrace == 0 {
		cfg.RotationGrace = DefaultRotationGrace
	}
	return &Manager{
		store:   store,
		ttl:     cfg.TTL,
		now:     cfg.Clock,
		log:     logging.New(cfg.Logger).With("component", "refresh"),
		onReuse: cfg.OnReuse,
		grace:   cfg.RotationGrace,
	}, nil
}

// TTL returns the configured refresh-token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Generate starts a new family for userID at generation 1.
func (m *Manager) Generate(ctx context.Context, userID string) (Issued, error) {
	if strings.TrimSpace(userID) == "" {
		return Issued{}, ErrUserIDRequired
	}
	raw, hash, err := NewToken()
	if err != nil {
		return Issued{}, fmt.Errorf("refresh: generate token: %w", err)
	}
	now := m.now()
	rec := m.newRecord(ctx, hash, userID, uuid.NewString(), 1, now)
	if err := m.store.Create(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("refresh: create: %w", err)
	}
	return Issued{Token: raw, FamilyID: rec.FamilyID, Generation: 1, ExpiresAt: rec.ExpiresAt}, nil
}

func (m *Manager) newRecord(ctx context.Context, hash, userID, familyID string, generation int, now time.Time) Record {
	return Record{
		TokenHash:  hash,
		UserID:     userID,
		FamilyID:   familyID,
		Generation: generation,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		ClientIP:   reqmeta.ClientIP(ctx),
		UserAgent:  reqmeta.UserAgent(ctx),
	}
}

// Rotate exchanges raw for its successor in the same family.
//
// Outcomes:
//   - unknown or malformed token: ErrInvalidToken
//   - revoked token: the family is revoked, ErrTokenReused
//   - token of another user: ErrOwnershipMismatch
//   - expired token: ErrTokenExpired
//   - another rotation of the same token running in this process, or
//     completed by it less than RotationGrace ago: ErrInvalidToken
//   - token seen active but consumed by another process first: ErrInvalidToken
//
// When the store cannot rotate atomically and inserting the successor fails
// after the presented record was revoked, the revocation stands and the user
// has to log in again.
func (m *Manager) Rotate(ctx context.Context, raw, userID string) (Issued, error) {
	return m.RotateChecked(ctx, raw, userID, nil)
}

// RotateChecked is Rotate with check run once the presented record has
// passed every validation and before it is consumed. An error from check
// aborts the rotation and is returned unchanged; the presented token stays
// usable.
func (m *Manager) RotateChecked(ctx context.Context, raw, userID string, check func(context.Context, Record) error) (Issued, error) {
	hash, ok := hashPresented(raw)
	if !ok {
		return Issued{}, ErrInvalidToken
	}
	if _, busy := m.inflight.LoadOrStore(hash, struct{}{}); busy {
		return Issued{}, ErrInvalidToken
	}
	defer m.inflight.Delete(hash)
	if m.recentlyRotated(hash) {
		return Issued{}, ErrInvalidToken
	}

	rec, err := m.store.FindByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return Issued{}, ErrInvalidToken
	}
	if err != nil {
		return Issued{}, fmt.Errorf("refresh: find: %w", err)
	}
	if rec.Revoked {
		return Issued{}, m.reuseDetected(ctx, rec)
	}
	if rec.UserID != userID {
		return Issued{}, ErrOwnershipMismatch
	}
	now := m.now()
	if rec.Expired(now) {
		return Issued{}, ErrTokenExpired
	}
	if check != nil {
		if err := check(ctx, *rec); err != nil {
			return Issued{}, err
		}
	}

	nextRaw, nextHash, err := NewToken()
	if err != nil {
		return Issued{}, fmt.Errorf("refresh: generate token: %w", err)
	}
	next := m.newRecord(ctx, nextHash, rec.UserID, rec.FamilyID, rec.Generation+1, now)

	if rot, ok := m.store.(Rotator); ok {
		switch err := rot.Rotate(ctx, hash, next, now); {
		case errors.Is(err, ErrAlreadyRevoked), errors.Is(err, ErrNotFound):
			// lost the conditional revoke to a concurrent rotation
			return Issued{}, ErrInvalidToken
		case err != nil:
			return Issued{}, fmt.Errorf("refresh: rotate: %w", err)
		}
	} else {
		revoked, err := m.store.RevokeByHash(ctx, hash, now)
		if err != nil {
			return Issued{}, fmt.Errorf("refresh: revoke: %w", err)
		}
		if !revoked {
			return Issued{}, ErrInvalidToken
		}
		if err := m.store.Create(ctx, next); err != nil {
			m.log.Error(ctx, "rotation revoked token but could not store successor",
				"user_id", rec.UserID, "family_id", rec.FamilyID, "error", err)
			return Issued{}, fmt.Errorf("refresh: create successor: %w", err)
		}
	}

	m.markRotated(hash, now)
	return Issued{Token: nextRaw, FamilyID: next.FamilyID, Generation: next.Generation, ExpiresAt: next.ExpiresAt}, nil
}

func (m *Manager) recentlyRotated(hash string) bool {
	if m.grace < 0 {
		return false
	}
	v, ok := m.rotated.Load(hash)
	if !ok {
		return false
	}
	if m.now().Sub(v.(time.Time)) < m.grace {
		return true
	}
	m.rotated.Delete(hash)
	return false
}

// markRotated records hash and drops expired markers at most once per
// grace period.
func (m *Manager) markRotated(hash string, at time.Time) {
	if m.grace < 0 {
		return
	}
	m.rotated.Store(hash, at)

	last := m.lastSweep.Load()
	if at.UnixNano()-last < int64(m.grace) || !m.lastSweep.CompareAndSwap(last, at.UnixNano()) {
		return
	}
	m.rotated.Range(func(k, v any) bool {
		if at.Sub(v.(time.Time)) >= m.grace {
			m.rotated.Delete(k)
		}
		return true
	})
}

func (m *Manager) reuseDetected(ctx context.Context, rec *Record) error {
	n, err := m.store.RevokeFamily(ctx, rec.FamilyID, m.now())
	ev := ReuseEvent{UserID: rec.UserID, FamilyID: rec.FamilyID, Generation: rec.Generation, Revoked: n, Err: err}
	m.log.Error(ctx, "refresh token reuse detected, family revoked",
		"user_id", rec.UserID, "family_id", rec.FamilyID, "generation", rec.Generation, "revoked", n)
	if m.onReuse != nil {
		m.onReuse(ctx, ev)
	}
	if err != nil {
		m.log.Error(ctx, "family revocation failed after reuse", "family_id", rec.FamilyID, "error", err)
		return fmt.Errorf("%w: family revocation failed: %v", ErrTokenReused, err)
	}
	return ErrTokenReused
}

// Validate reports whether raw is an active, unexpired token of userID. It
// never mutates state.
func (m *Manager) Validate(ctx context.Context, raw, userID string) (bool, error) {
	hash, ok := hashPresented(raw)
	if !ok {
		return false, nil
	}
	rec, err := m.store.FindByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("refresh: find: %w", err)
	}
	return !rec.Revoked && rec.UserID == userID && !rec.Expired(m.now()), nil
}

// Revoke revokes raw. Unknown and already revoked tokens are not errors.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	hash, ok := hashPresented(raw)
	if !ok {
		return nil
	}
	if _, err := m.store.RevokeByHash(ctx, hash, m.now()); err != nil {
		return fmt.Errorf("refresh: revoke: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active token of userID across families.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrUserIDRequired
	}
	n, err := m.store.RevokeAllByUser(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("refresh: revoke all: %w", err)
	}
	return n, nil
}

// Prune deletes expired records regardless of revocation state.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("refresh: prune: %w", err)
	}
	return n, nil
}
