// Package authcore issues and verifies short-lived signed access tokens and
// rotates opaque refresh tokens with reuse detection.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([TokenPair], [MetricsSnapshot], [AuditEvent]). Key loading lives
// in package keys, signing in package jwt, refresh-token families in package
// refresh, and storage backends under store/. The engine never hands out the
// token codec or the refresh store.
//
// # Error vocabulary
//
// Engine methods return [ErrUnauthenticated], [ErrSessionRevoked],
// [ErrUnavailable], [ErrInvalidRequest] or [ErrEngineNotReady]. The message of
// a returned error is always that of the public sentinel, so it can be shown
// to clients without revealing which verification check failed.
//
// # What this package must NOT do
//
//   - Store raw refresh tokens. Only SHA-256 hashes reach a store.
//   - Fail Build because keys are missing. Token operations report
//     ErrUnavailable until a key set loads.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
