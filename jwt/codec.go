package jwt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/keys"
)

// KeyProvider supplies signing and verification keys. *keys.Manager
// implements it.
type KeyProvider interface {
	Signing(ctx context.Context) (keys.KeyPair, error)
	Verification(ctx context.Context, kid string) (keys.VerificationKey, error)
}

// Config controls token lifetime and the registered claims checked on verify.
type Config struct {
	// Algorithm pins the signing algorithm. Empty accepts every algorithm
	// the keys package supports.
	Algorithm keys.Algorithm
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	// Leeway tolerates clock skew on exp and iat.
	Leeway time.Duration
	// MaxFutureIAT rejects tokens issued too far ahead of the local clock.
	// Zero means ten minutes.
	MaxFutureIAT time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Claims is the fixed access-token payload. Extra carries optional
// application fields under the "ext" claim and is never consulted here.
type Claims struct {
	Email string         `json:"email,omitempty"`
	Role  string         `json:"role,omitempty"`
	Extra map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the "sub" claim.
func (c *Claims) SubjectID() string { return c.Subject }

// Codec signs and verifies access tokens.
type Codec struct {
	cfg     Config
	keys    KeyProvider
	methods []string
}

var supportedMethods = []string{string(keys.RS256), string(keys.ES256), string(keys.EdDSA)}

// NewCodec validates cfg and returns a Codec bound to kp.
func NewCodec(cfg Config, kp KeyProvider) (*Codec, error) {
	if kp == nil {
		return nil, errors.New("jwt: key provider is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("jwt: issuer and audience are required")
	}
	methods := supportedMethods
	if cfg.Algorithm != "" {
		if !slices.Contains(supportedMethods, string(cfg.Algorithm)) {
			return nil, fmt.Errorf("%w: %s", keys.ErrUnsupportedAlgorithm, cfg.Algorithm)
		}
		methods = []string{string(cfg.Algorithm)}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Codec{cfg: cfg, keys: kp, methods: methods}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// IssueOption customizes a single issued token.
type IssueOption func(*Claims)

// WithExtra attaches application fields to the "ext" claim.
func WithExtra(extra map[string]any) IssueOption {
	return func(c *Claims) {
		if len(extra) > 0 {
			c.Extra = extra
		}
	}
}

// AccessToken is a signed token with the expiry written into its exp claim.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// IssueAccessToken signs a token for subjectID with a fresh jti and the
// active key's kid in the header.
func (c *Codec) IssueAccessToken(ctx context.Context, subjectID, email, role string, opts ...IssueOption) (string, error) {
	at, err := c.Issue(ctx, subjectID, email, role, opts...)
	return at.Token, err
}

// Issue is IssueAccessToken that also reports the exp claim, so callers
// never recompute it from their own clock.
func (c *Codec) Issue(ctx context.Context, subjectID, email, role string, opts ...IssueOption) (AccessToken, error) {
	if strings.TrimSpace(subjectID) == "" {
		return AccessToken{}, errors.New("jwt: subject id is required")
	}
	kp, err := c.keys.Signing(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	method := jwt.GetSigningMethod(string(kp.Algorithm))
	if method == nil || !slices.Contains(c.methods, string(kp.Algorithm)) {
		return AccessToken{}, fmt.Errorf("%w: %s", keys.ErrUnsupportedAlgorithm, kp.Algorithm)
	}

	now := c.cfg.Clock()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kp.KeyID
	signed, err := token.SignedString(kp.PrivateKey)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry in that
// order. Failures wrap ErrTokenInvalid, except an unavailable key set which
// is reported as keys.ErrNotInitialized.
func (c *Codec) VerifyAccessToken(ctx context.Context, tokenStr string) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(c.methods),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		vk, err := c.keys.Verification(ctx, kid)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != string(vk.Algorithm) {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return vk.PublicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(tokenStr, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformed
	}

	if claims.Issuer != c.cfg.Issuer || !slices.Contains(claims.Audience, c.cfg.Audience) {
		return nil, ErrInvalidIssuerOrAudience
	}

	now := c.cfg.Clock()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time.Add(c.cfg.Leeway)) {
		return nil, ErrExpired
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now.Add(c.cfg.MaxFutureIAT+c.cfg.Leeway)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}

func classifyParseError(tokenStr string, err error) error {
	switch {
	case errors.Is(err, keys.ErrNotInitialized):
		return fmt.Errorf("jwt: verify: %w", keys.ErrNotInitialized)
	case errors.Is(err, jwt.ErrTokenMalformed) && signatureCorrupt(tokenStr):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

// signatureCorrupt reports whether the header and claims segments decode
// while the signature segment does not.
func signatureCorrupt(tokenStr string) bool {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding.Strict()
	for _, seg := range parts[:2] {
		if _, err := enc.DecodeString(seg); err != nil {
			return false
		}
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}

// DecodeUnsafe decodes the payload without verifying anything. It returns
// nil for structurally invalid input.
func DecodeUnsafe(tokenStr string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	return claims
}
