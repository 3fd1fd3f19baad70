package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// RSAKeyBits is the modulus size used for generated RS256 keys.
const RSAKeyBits = 2048

// Generate creates a fresh key pair and returns it as a public and a private
// JWKS document, both carrying kid.
func Generate(alg Algorithm, kid string) (public, private []byte, err error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, nil, fmt.Errorf("keys: kid must not be empty")
	}

	var signer crypto.Signer
	switch alg {
	case RS256:
		signer, err = rsa.GenerateKey(rand.Reader, RSAKeyBits)
	case ES256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case EdDSA:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("keys: generate %s key: %w", alg, err)
	}

	priv := jose.JSONWebKey{Key: signer, KeyID: kid, Algorithm: string(alg), Use: "sig"}
	pub := priv.Public()

	private, err = json.MarshalIndent(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{priv}}, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	public, err = json.MarshalIndent(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return public, private, nil
}
