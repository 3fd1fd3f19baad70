// Package jwt issues and verifies short-lived access tokens signed with the
// asymmetric keys held by a keys.Manager.
//
// Verification runs in a fixed order: signature (key chosen by the "kid"
// header), issuer, audience, expiry. The first failing check decides the
// returned error, so callers can tell a forged token from an expired one.
//
// # What this package must NOT do
//
//   - sign refresh tokens; those are opaque values owned by package refresh
//   - trust DecodeUnsafe output for any authorization decision
package jwt
