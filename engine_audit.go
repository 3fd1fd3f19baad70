package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/refresh"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRefreshInactiveUser  = "refresh_inactive_user"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventVerifyFailure        = "verify_failure"
)

// AuditErrorCode is the stable failure code carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrExpiredToken     AuditErrorCode = "expired_token"
	auditErrOwnership        AuditErrorCode = "ownership_mismatch"
	auditErrRefreshReuse     AuditErrorCode = "refresh_reuse"
	auditErrSessionRevoked   AuditErrorCode = "session_revoked"
	auditErrKeysUnavailable  AuditErrorCode = "keys_unavailable"
	auditErrStoreUnavailable AuditErrorCode = "store_unavailable"
	auditErrProvider         AuditErrorCode = "user_provider_error"
	auditErrInvalidRequest   AuditErrorCode = "invalid_request"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, refresh.ErrTokenReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, refresh.ErrTokenExpired),
		errors.Is(err, jwt.ErrExpired):
		return auditErrExpiredToken
	case errors.Is(err, refresh.ErrOwnershipMismatch):
		return auditErrOwnership
	case errors.Is(err, refresh.ErrInvalidToken),
		errors.Is(err, jwt.ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, keys.ErrNotInitialized),
		errors.Is(err, keys.ErrKeyLoad),
		errors.Is(err, keys.ErrUnsupportedAlgorithm):
		return auditErrKeysUnavailable
	case errors.Is(err, refresh.ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.As(err, new(providerError)):
		return auditErrProvider
	case errors.Is(err, refresh.ErrUserIDRequired),
		errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	default:
		return auditErrInternal
	}
}

// providerError marks a UserProvider failure other than ErrUserNotFound.
type providerError struct{ err error }

func (p providerError) Error() string { return "user provider: " + p.err.Error() }
func (p providerError) Unwrap() error { return p.err }

// engineError reports only the public sentinel in its message while still
// matching the internal cause through errors.Is.
type engineError struct {
	public error
	cause  error
}

func (e *engineError) Error() string   { return e.public.Error() }
func (e *engineError) Unwrap() []error { return []error{e.public, e.cause} }

// publicError maps internal failures onto the engine's error vocabulary.
// Context cancellation is returned unchanged.
func (e *Engine) publicError(ctx context.Context, err error) error {
	var public error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, refresh.ErrTokenReused):
		public = ErrSessionRevoked
	case errors.Is(err, jwt.ErrTokenInvalid),
		errors.Is(err, refresh.ErrInvalidToken),
		errors.Is(err, refresh.ErrOwnershipMismatch):
		public = ErrUnauthenticated
	case errors.Is(err, refresh.ErrUserIDRequired):
		public = ErrInvalidRequest
	case errors.Is(err, keys.ErrNotInitialized),
		errors.Is(err, keys.ErrKeyLoad),
		errors.Is(err, keys.ErrUnsupportedAlgorithm):
		e.metricInc(MetricKeysUnavailable)
		e.log.Error(ctx, "key material unavailable", "error", err)
		public = ErrUnavailable
	case errors.Is(err, refresh.ErrStoreUnavailable):
		e.metricInc(MetricStoreUnavailable)
		e.log.Error(ctx, "refresh store unavailable", "error", err)
		public = ErrUnavailable
	case errors.As(err, new(providerError)):
		e.log.Error(ctx, "user provider failed", "error", err)
		public = ErrUnavailable
	default:
		e.log.Error(ctx, "unexpected engine failure", "error", err)
		public = ErrUnavailable
	}
	return &engineError{public: public, cause: err}
}

