package keys

import "errors"

var (
	// ErrKeyLoad is returned when a key source cannot be read or parsed.
	ErrKeyLoad = errors.New("keys: key material could not be loaded")
	// ErrNotInitialized is returned while no key set has been loaded.
	ErrNotInitialized = errors.New("keys: key manager not initialized")
	// ErrUnknownKeyID is returned when no verification key matches a kid.
	ErrUnknownKeyID = errors.New("keys: unknown key id")
	// ErrUnsupportedAlgorithm is returned for keys outside RS256, ES256 and EdDSA.
	ErrUnsupportedAlgorithm = errors.New("keys: unsupported algorithm")
)
