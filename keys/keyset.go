package keys

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// Algorithm is a JWS signing algorithm name.
type Algorithm string

const (
	RS256 Algorithm = "RS256"
	ES256 Algorithm = "ES256"
	EdDSA Algorithm = "EdDSA"
)

// KeyPair is the signing half of a key set entry.
type KeyPair struct {
	KeyID      string
	Algorithm  Algorithm
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
}

// VerificationKey is a public key together with the algorithm it verifies.
type VerificationKey struct {
	KeyID     string
	Algorithm Algorithm
	PublicKey crypto.PublicKey
}

// Set is an immutable parsed key set. It is safe for concurrent use.
type Set struct {
	signing KeyPair
	verify  map[string]VerificationKey
	order   []string
}

// Signing returns the active signing pair.
func (s *Set) Signing() KeyPair { return s.signing }

// Verification returns the verification key registered under kid.
func (s *Set) Verification(kid string) (VerificationKey, error) {
	k, ok := s.verify[kid]
	if !ok {
		return VerificationKey{}, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return k, nil
}

// KeyIDs lists verification key ids in source order.
func (s *Set) KeyIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// PublicJWKS renders every verification key as a JWK Set document.
func (s *Set) PublicJWKS() ([]byte, error) {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(s.order))}
	for _, kid := range s.order {
		k := s.verify[kid]
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.KeyID,
			Algorithm: string(k.Algorithm),
			Use:       "sig",
		})
	}
	return json.Marshal(set)
}

// ParseSet builds a Set from a public and a private JWKS document.
//
// Every private key must have a public entry with the same kid. The active
// signer is activeKID when non-empty, otherwise the first private key.
// Public keys without a private counterpart stay verifiable, which keeps
// tokens signed by a retired key valid until they expire.
func ParseSet(public, private []byte, activeKID string) (*Set, error) {
	pubKeys, err := decodeJWKS(public)
	if err != nil {
		return nil, fmt.Errorf("%w: public jwks: %v", ErrKeyLoad, err)
	}
	privKeys, err := decodeJWKS(private)
	if err != nil {
		return nil, fmt.Errorf("%w: private jwks: %v", ErrKeyLoad, err)
	}
	if len(pubKeys) == 0 {
		return nil, fmt.Errorf("%w: public jwks has no keys", ErrKeyLoad)
	}
	if len(privKeys) == 0 {
		return nil, fmt.Errorf("%w: private jwks has no keys", ErrKeyLoad)
	}

	set := &Set{verify: make(map[string]VerificationKey, len(pubKeys))}
	for _, jwk := range pubKeys {
		kid := strings.TrimSpace(jwk.KeyID)
		if kid == "" {
			return nil, fmt.Errorf("%w: public key without kid", ErrKeyLoad)
		}
		if _, dup := set.verify[kid]; dup {
			return nil, fmt.Errorf("%w: duplicate kid %q", ErrKeyLoad, kid)
		}
		pub := jwk.Public()
		if pub.Key == nil {
			return nil, fmt.Errorf("%w: kid %q is not an asymmetric key", ErrKeyLoad, kid)
		}
		alg, err := algorithmFor(pub.Key, jwk.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("%w: kid %q: %v", ErrKeyLoad, kid, err)
		}
		set.verify[kid] = VerificationKey{KeyID: kid, Algorithm: alg, PublicKey: pub.Key}
		set.order = append(set.order, kid)
	}

	var chosen *jose.JSONWebKey
	for i := range privKeys {
		jwk := &privKeys[i]
		if jwk.IsPublic() {
			return nil, fmt.Errorf("%w: private jwks entry %q carries no private key", ErrKeyLoad, jwk.KeyID)
		}
		if _, ok := set.verify[jwk.KeyID]; !ok {
			return nil, fmt.Errorf("%w: private key %q has no public counterpart", ErrKeyLoad, jwk.KeyID)
		}
		if chosen == nil && (activeKID == "" || jwk.KeyID == activeKID) {
			chosen = jwk
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: active kid %q not found in private jwks", ErrKeyLoad, activeKID)
	}

	signer, ok := chosen.Key.(crypto.Signer)
	if !ok {
		// ed25519 keys decode as values, which already implement crypto.Signer;
		// anything else here is not usable for signing.
		return nil, fmt.Errorf("%w: kid %q cannot sign", ErrKeyLoad, chosen.KeyID)
	}
	verifier := set.verify[chosen.KeyID]
	if !samePublicKey(signer.Public(), verifier.PublicKey) {
		return nil, fmt.Errorf("%w: kid %q private and public keys differ", ErrKeyLoad, chosen.KeyID)
	}
	set.signing = KeyPair{
		KeyID:      chosen.KeyID,
		Algorithm:  verifier.Algorithm,
		PrivateKey: signer,
		PublicKey:  verifier.PublicKey,
	}
	return set, nil
}

// decodeJWKS accepts both a {"keys":[...]} document and a bare JSON array.
func decodeJWKS(data []byte) ([]jose.JSONWebKey, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if trimmed[0] == '[' {
		var keys []jose.JSONWebKey
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return nil, err
		}
		return keys, nil
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(trimmed, &set); err != nil {
		return nil, err
	}
	return set.Keys, nil
}

func algorithmFor(key any, declared string) (Algorithm, error) {
	var inferred Algorithm
	switch k := key.(type) {
	case *rsa.PublicKey:
		inferred = RS256
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("%w: curve %s", ErrUnsupportedAlgorithm, k.Curve.Params().Name)
		}
		inferred = ES256
	case ed25519.PublicKey:
		inferred = EdDSA
	default:
		return "", fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, key)
	}
	if declared != "" && Algorithm(declared) != inferred {
		return "", fmt.Errorf("%w: %s declared for %s key", ErrUnsupportedAlgorithm, declared, inferred)
	}
	return inferred, nil
}

func samePublicKey(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	ea, ok := a.(equaler)
	return ok && ea.Equal(b)
}
