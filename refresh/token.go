package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	tokenBytes = 32
	// maxTokenLen bounds input accepted for hashing.
	maxTokenLen = 256
)

// NewToken returns a fresh raw token and its hash.
func NewToken() (raw string, hash string, err error) {
	var secret [tokenBytes]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(secret[:])
	return raw, Hash(raw), nil
}

// Hash returns the lowercase hex SHA-256 of raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashPresented(raw string) (string, bool) {
	if raw == "" || len(raw) > maxTokenLen {
		return "", false
	}
	return Hash(raw), true
}
