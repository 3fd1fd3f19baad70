package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/refresh"
)

// Engine issues, refreshes, verifies and revokes tokens. It is safe for
// concurrent use. Create one with New().Build().
type Engine struct {
	config       Config
	keys         *keys.Manager
	codec        *jwt.Codec
	refresh      *refresh.Manager
	userProvider UserProvider
	audit        *auditDispatcher
	metrics      *Metrics
	log          logging.Logger
	logger       *slog.Logger
	now          func() time.Time
}

var errInactiveUser = errors.New("user is not active")

// Login describes the login operation and its observable behavior.
//
// Login issues a new token pair for an already authenticated user. The
// refresh token starts a new family. Credential checks are the caller's
// responsibility.
func (e *Engine) Login(ctx context.Context, userID, email, role string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, ErrInvalidRequest
	}

	access, expiresAt, err := e.issueAccess(ctx, userID, email, role)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
		return TokenPair{}, e.publicError(ctx, err)
	}

	issued, err := e.refresh.Generate(ctx, userID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
		return TokenPair{}, e.publicError(ctx, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, issued.FamilyID, nil, nil)

	return e.pair(access, expiresAt, issued), nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh exchanges rawRefresh for a new token pair. The account is looked up
// through the UserProvider before the presented token is consumed, so email
// and role changes show up in the new access token. An inactive or unknown
// account has every refresh token revoked and gets ErrSessionRevoked.
// Replaying a rotated token revokes its whole family and returns
// ErrSessionRevoked. Any other rejection is ErrUnauthenticated.
func (e *Engine) Refresh(ctx context.Context, rawRefresh, userID string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metricObserve(MetricRefreshLatency, start)

	var (
		access    string
		expiresAt time.Time
	)
	issued, err := e.refresh.RotateChecked(ctx, rawRefresh, userID, func(ctx context.Context, rec refresh.Record) error {
		user, err := e.userProvider.GetUser(ctx, rec.UserID)
		switch {
		case errors.Is(err, ErrUserNotFound):
			return errInactiveUser
		case err != nil:
			return providerError{err}
		case !user.Active:
			return errInactiveUser
		}
		access, expiresAt, err = e.issueAccess(ctx, rec.UserID, user.Email, user.Role)
		return err
	})
	if errors.Is(err, errInactiveUser) {
		return TokenPair{}, e.revokeInactive(ctx, userID)
	}
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if !errors.Is(err, refresh.ErrTokenReused) {
			// reuse has its own event, emitted from onReuse
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", err, nil)
		}
		return TokenPair{}, e.publicError(ctx, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, issued.FamilyID, nil, func() map[string]string {
		return map[string]string{"generation": strconv.Itoa(issued.Generation)}
	})

	return e.pair(access, expiresAt, issued), nil
}

func (e *Engine) revokeInactive(ctx context.Context, userID string) error {
	e.metricInc(MetricRefreshFailure)
	e.metricInc(MetricRefreshInactiveUser)

	n, err := e.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		e.log.Warn(ctx, "revoking tokens of inactive user failed", "user_id", userID, "error", err)
	}
	e.emitAudit(ctx, auditEventRefreshInactiveUser, false, userID, "", ErrSessionRevoked, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	})
	return ErrSessionRevoked
}

// Logout revokes rawRefresh. Unknown or already revoked tokens are not an
// error, so repeated logouts succeed.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.refresh.Revoke(ctx, rawRefresh); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", err, nil)
		return e.publicError(ctx, err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", "", nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of userID across all families and
// returns how many records changed. Issued access tokens stay valid until
// they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", err, nil)
		return 0, e.publicError(ctx, err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify checks an access token's signature, issuer, audience and expiry and
// returns its claims. Every rejection is reported as ErrUnauthenticated with
// the same message, whatever check failed.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metricObserve(MetricVerifyLatency, start)

	claims, err := e.codec.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		if errors.Is(err, jwt.ErrTokenInvalid) {
			e.emitAudit(ctx, auditEventVerifyFailure, false, "", "", err, nil)
		}
		return nil, e.publicError(ctx, err)
	}
	e.metricInc(MetricVerifySuccess)
	return claims, nil
}

// PublicKeySet returns the JWK Set of every verification key, without
// private material, in the form served at /.well-known/jwks.json.
func (e *Engine) PublicKeySet(ctx context.Context) ([]byte, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	doc, err := e.keys.PublicJWKS(ctx)
	if err != nil {
		return nil, e.publicError(ctx, err)
	}
	return doc, nil
}

// Ready reports whether key material is loaded.
func (e *Engine) Ready() bool {
	return e != nil && e.keys.Ready()
}

// Prune deletes expired refresh records and returns how many were removed.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.Prune(ctx)
	if err != nil {
		return 0, e.publicError(ctx, err)
	}
	if n > 0 {
		e.metrics.Add(MetricPrunedRecords, uint64(n))
	}
	return n, nil
}

// RunSweeper prunes expired refresh records every Config.Refresh.SweepInterval
// until ctx is done. It always returns nil.
func (e *Engine) RunSweeper(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return refresh.NewSweeper(e, e.config.Refresh.SweepInterval, e.logger).Run(ctx)
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the live counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) issueAccess(ctx context.Context, userID, email, role string) (string, time.Time, error) {
	at, err := e.codec.Issue(ctx, userID, email, role)
	if err != nil {
		return "", time.Time{}, err
	}
	return at.Token, at.ExpiresAt, nil
}

func (e *Engine) pair(access string, expiresAt time.Time, issued refresh.Issued) TokenPair {
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		TokenType:        TokenType,
		ExpiresIn:        int64(e.codec.AccessTTL() / time.Second),
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: issued.ExpiresAt,
	}
}

// onReuse runs inside refresh.Manager once a replayed family was revoked.
func (e *Engine) onReuse(ctx context.Context, ev refresh.ReuseEvent) {
	e.metricInc(MetricRefreshReuseDetected)
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, ev.UserID, ev.FamilyID, refresh.ErrTokenReused, func() map[string]string {
		md := map[string]string{
			"generation": strconv.Itoa(ev.Generation),
			"revoked":    strconv.FormatInt(ev.Revoked, 10),
		}
		if ev.Err != nil {
			md["revoke_error"] = ev.Err.Error()
		}
		return md
	})
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
