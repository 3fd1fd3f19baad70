package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authcore/keys"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newKeyManager(t *testing.T, alg keys.Algorithm, kid string) (*keys.Manager, []byte, []byte) {
	t.Helper()
	pub, priv, err := keys.Generate(alg, kid)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return keys.NewManager(context.Background(), keys.BytesSource{Public: pub, Private: priv}, keys.Options{}), pub, priv
}

func newTestCodec(t *testing.T, kp KeyProvider, clock *testClock) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		AccessTTL: 15 * time.Minute,
		Issuer:    "authcore-test",
		Audience:  "api",
		Clock:     clock.Now,
	}, kp)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func tokenHeader(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var h map[string]any
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	return h
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	for _, alg := range []keys.Algorithm{keys.RS256, keys.ES256, keys.EdDSA} {
		km, _, _ := newKeyManager(t, alg, "k-"+string(alg))
		clock := &testClock{now: time.Now()}
		c := newTestCodec(t, km, clock)

		tok, err := c.IssueAccessToken(context.Background(), "user-1", "a@example.com", "admin")
		if err != nil {
			t.Fatalf("%s: issue: %v", alg, err)
		}
		if h := tokenHeader(t, tok); h["kid"] != "k-"+string(alg) || h["alg"] != string(alg) {
			t.Fatalf("%s: unexpected header %v", alg, h)
		}

		claims, err := c.VerifyAccessToken(context.Background(), tok)
		if err != nil {
			t.Fatalf("%s: verify: %v", alg, err)
		}
		if claims.SubjectID() != "user-1" || claims.Email != "a@example.com" || claims.Role != "admin" {
			t.Fatalf("%s: unexpected claims %+v", alg, claims)
		}
		if claims.ID == "" {
			t.Fatalf("%s: missing jti", alg)
		}
		if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
			t.Fatalf("%s: exp-iat = %v", alg, got)
		}
	}
}

func TestIssueUsesFreshJTI(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		tok, err := c.IssueAccessToken(context.Background(), "u", "", "")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		jti := DecodeUnsafe(tok).ID
		if seen[jti] {
			t.Fatalf("duplicate jti %q", jti)
		}
		seen[jti] = true
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.RS256, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})

	tok, err := c.IssueAccessToken(context.Background(), "u1", "u1@example.com", "viewer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	forged := strings.Replace(string(payload), `"viewer"`, `"admin"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = c.VerifyAccessToken(context.Background(), strings.Join(parts, "."))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected error to wrap ErrTokenInvalid")
	}
}

func TestVerifyRejectsEverySignatureByteFlip(t *testing.T) {
	for _, alg := range []keys.Algorithm{keys.RS256, keys.ES256, keys.EdDSA} {
		km, _, _ := newKeyManager(t, alg, "k-"+string(alg))
		c := newTestCodec(t, km, &testClock{now: time.Now()})

		tok, err := c.IssueAccessToken(context.Background(), "u1", "", "")
		if err != nil {
			t.Fatalf("%s: issue: %v", alg, err)
		}
		sigStart := strings.LastIndexByte(tok, '.') + 1
		for i := sigStart; i < len(tok); i++ {
			b := []byte(tok)
			b[i] ^= 0x01
			_, err := c.VerifyAccessToken(context.Background(), string(b))
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("%s: flipped signature byte %d: expected ErrInvalidSignature, got %v", alg, i-sigStart, err)
			}
		}
	}
}

func TestVerifyTruncatedTokenIsMalformed(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.ES256, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})

	tok, _ := c.IssueAccessToken(context.Background(), "u1", "", "")
	headerAndClaims := tok[:strings.LastIndexByte(tok, '.')]
	if _, err := c.VerifyAccessToken(context.Background(), headerAndClaims); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := c.VerifyAccessToken(context.Background(), "!!."+tok[strings.IndexByte(tok, '.')+1:]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("corrupt header must stay malformed, got %v", err)
	}
}

func TestIssueReportsExpClaim(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 999_000_000, time.UTC)}
	c := newTestCodec(t, km, clock)

	at, err := c.Issue(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.VerifyAccessToken(context.Background(), at.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !at.ExpiresAt.Equal(claims.ExpiresAt.Time) {
		t.Fatalf("reported expiry %v differs from exp claim %v", at.ExpiresAt, claims.ExpiresAt.Time)
	}
}

func TestVerifyExpiry(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	clock := &testClock{now: time.Now()}
	c := newTestCodec(t, km, clock)

	tok, err := c.IssueAccessToken(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.now = clock.now.Add(15*time.Minute + time.Second)
	if _, err := c.VerifyAccessToken(context.Background(), tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyLeewayToleratesSkew(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	clock := &testClock{now: time.Now()}
	c, err := NewCodec(Config{AccessTTL: time.Minute, Issuer: "i", Audience: "a", Leeway: 30 * time.Second, Clock: clock.Now}, km)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	tok, _ := c.IssueAccessToken(context.Background(), "u1", "", "")
	clock.now = clock.now.Add(time.Minute + 10*time.Second)
	if _, err := c.VerifyAccessToken(context.Background(), tok); err != nil {
		t.Fatalf("expected token inside leeway to verify: %v", err)
	}
}

func TestVerifyCheckOrder(t *testing.T) {
	km, _, priv := newKeyManager(t, keys.EdDSA, "k1")
	clock := &testClock{now: time.Now()}
	c := newTestCodec(t, km, clock)

	set, err := keys.ParseSet(mustPublic(t, km), priv, "")
	if err != nil {
		t.Fatalf("parse set: %v", err)
	}
	signer := set.Signing().PrivateKey

	sign := func(iss, aud string, exp time.Time) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, Claims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(clock.now.Add(-time.Hour)),
		}})
		tok.Header["kid"] = "k1"
		s, err := tok.SignedString(signer)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	past := clock.now.Add(-time.Minute)
	future := clock.now.Add(time.Minute)

	if _, err := c.VerifyAccessToken(context.Background(), sign("other", "api", past)); !errors.Is(err, ErrInvalidIssuerOrAudience) {
		t.Fatalf("issuer must be checked before expiry, got %v", err)
	}
	if _, err := c.VerifyAccessToken(context.Background(), sign("authcore-test", "web", future)); !errors.Is(err, ErrInvalidIssuerOrAudience) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
	expired := sign("other", "api", past)
	if _, err := c.VerifyAccessToken(context.Background(), expired[:len(expired)-4]+"AAAA"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("signature must be checked first, got %v", err)
	}
}

func mustPublic(t *testing.T, km *keys.Manager) []byte {
	t.Helper()
	doc, err := km.PublicJWKS(context.Background())
	if err != nil {
		t.Fatalf("public jwks: %v", err)
	}
	return doc
}

func TestVerifyRejectsForeignAlgorithms(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})

	hs := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject: "u1", Issuer: "authcore-test", Audience: gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	hs.Header["kid"] = "k1"
	hsTok, _ := hs.SignedString([]byte("secret-secret-secret-secret"))
	if _, err := c.VerifyAccessToken(context.Background(), hsTok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected HS256 to be rejected, got %v", err)
	}

	none := "eyJhbGciOiJub25lIiwia2lkIjoiazEifQ.eyJzdWIiOiJ1MSJ9."
	if _, err := c.VerifyAccessToken(context.Background(), none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg none to be rejected, got %v", err)
	}
}

func TestVerifyUnknownKeyID(t *testing.T) {
	kmA, _, _ := newKeyManager(t, keys.EdDSA, "a")
	kmB, _, _ := newKeyManager(t, keys.EdDSA, "b")
	issuer := newTestCodec(t, kmA, &testClock{now: time.Now()})
	verifier := newTestCodec(t, kmB, &testClock{now: time.Now()})

	tok, _ := issuer.IssueAccessToken(context.Background(), "u1", "", "")
	if _, err := verifier.VerifyAccessToken(context.Background(), tok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAfterKeyRotation(t *testing.T) {
	oldPub, oldPriv, _ := keys.Generate(keys.EdDSA, "old")
	newPub, newPriv, _ := keys.Generate(keys.EdDSA, "new")

	before := keys.NewManager(context.Background(), keys.BytesSource{Public: oldPub, Private: oldPriv}, keys.Options{})
	clock := &testClock{now: time.Now()}
	tok, err := newTestCodec(t, before, clock).IssueAccessToken(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	after := keys.NewManager(context.Background(), keys.BytesSource{
		Public:  joinKeySets(t, newPub, oldPub),
		Private: newPriv,
	}, keys.Options{})
	if _, err := newTestCodec(t, after, clock).VerifyAccessToken(context.Background(), tok); err != nil {
		t.Fatalf("token signed by retired key should verify: %v", err)
	}
}

func joinKeySets(t *testing.T, docs ...[]byte) []byte {
	t.Helper()
	var all []json.RawMessage
	for _, d := range docs {
		var set struct {
			Keys []json.RawMessage `json:"keys"`
		}
		if err := json.Unmarshal(d, &set); err != nil {
			t.Fatal(err)
		}
		all = append(all, set.Keys...)
	}
	out, _ := json.Marshal(map[string]any{"keys": all})
	return out
}

type offlineKeys struct{}

func (offlineKeys) Signing(context.Context) (keys.KeyPair, error) {
	return keys.KeyPair{}, keys.ErrNotInitialized
}
func (offlineKeys) Verification(context.Context, string) (keys.VerificationKey, error) {
	return keys.VerificationKey{}, keys.ErrNotInitialized
}

func TestNotInitializedPropagates(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	good := newTestCodec(t, km, &testClock{now: time.Now()})
	tok, _ := good.IssueAccessToken(context.Background(), "u1", "", "")

	c := newTestCodec(t, offlineKeys{}, &testClock{now: time.Now()})
	if _, err := c.IssueAccessToken(context.Background(), "u1", "", ""); !errors.Is(err, keys.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized on issue, got %v", err)
	}
	_, err := c.VerifyAccessToken(context.Background(), tok)
	if !errors.Is(err, keys.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized on verify, got %v", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("key outage must not look like an invalid token")
	}
}

func TestExtraClaims(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})

	tok, err := c.IssueAccessToken(context.Background(), "u1", "", "", WithExtra(map[string]any{"tenant": "acme"}))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.VerifyAccessToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Extra["tenant"] != "acme" {
		t.Fatalf("extra claim lost: %v", claims.Extra)
	}
}

func TestDecodeUnsafe(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	c := newTestCodec(t, km, &testClock{now: time.Now()})
	tok, _ := c.IssueAccessToken(context.Background(), "u1", "e@example.com", "r")

	if got := DecodeUnsafe(tok[:len(tok)-3] + "xyz"); got == nil || got.Email != "e@example.com" {
		t.Fatalf("decode should ignore the signature, got %+v", got)
	}
	for _, bad := range []string{"", "abc", "a.b", "!!.??.##"} {
		if DecodeUnsafe(bad) != nil {
			t.Fatalf("expected nil for %q", bad)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.EdDSA, "k1")
	bad := []Config{
		{AccessTTL: 0, Issuer: "i", Audience: "a"},
		{AccessTTL: time.Minute, Issuer: "", Audience: "a"},
		{AccessTTL: time.Minute, Issuer: "i", Audience: " "},
		{AccessTTL: time.Minute, Issuer: "i", Audience: "a", Leeway: 3 * time.Minute},
		{AccessTTL: time.Minute, Issuer: "i", Audience: "a", MaxFutureIAT: -time.Second},
		{AccessTTL: time.Minute, Issuer: "i", Audience: "a", Algorithm: "HS256"},
	}
	for i, cfg := range bad {
		if _, err := NewCodec(cfg, km); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := NewCodec(Config{AccessTTL: time.Minute, Issuer: "i", Audience: "a"}, nil); err == nil {
		t.Fatalf("expected error for nil key provider")
	}
}

func TestPinnedAlgorithm(t *testing.T) {
	km, _, _ := newKeyManager(t, keys.ES256, "k1")
	clock := &testClock{now: time.Now()}
	pinned, err := NewCodec(Config{
		Algorithm: keys.EdDSA,
		AccessTTL: time.Minute,
		Issuer:    "authcore-test",
		Audience:  "api",
		Clock:     clock.Now,
	}, km)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := pinned.IssueAccessToken(context.Background(), "u1", "", ""); !errors.Is(err, keys.ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}

	tok, err := newTestCodec(t, km, clock).IssueAccessToken(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := pinned.VerifyAccessToken(context.Background(), tok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for ES256 under EdDSA pin, got %v", err)
	}
}
