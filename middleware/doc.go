// Package middleware adapts authcore.Engine access-token verification to
// net/http handlers.
//
// # Guards
//
//   - [RequireAccessToken] verifies the bearer token and stores the claims.
//   - [RequireRole] restricts a route to a set of role claims.
//   - [ClientMetadata] records caller IP and User-Agent for audit events.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.Verify).
//   - Touch refresh token storage.
package middleware
