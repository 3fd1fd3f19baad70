// Package refresh manages opaque rotating refresh tokens grouped into
// families.
//
// # Token format
//
// A refresh token is 32 bytes from crypto/rand, base64url encoded without
// padding. Tokens are never stored in plaintext; stores retain only the
// lowercase hex SHA-256 of the raw value.
//
// # Families and reuse
//
// Login starts a family at generation 1. Each rotation revokes the presented
// record and inserts its successor in the same family with generation+1, so
// a family has at most one active record. Presenting a revoked record is
// treated as theft: the whole family is revoked and ErrTokenReused returned.
//
// # Architecture boundaries
//
// This package owns lifecycle policy. Persistence sits behind [Store]; stores
// that can revoke-and-insert atomically also implement [Rotator].
//
// # What this package must NOT do
//
//   - Persist or log raw token values.
//   - Import authcore, jwt, or concrete store packages.
package refresh
