// Package keys loads, holds and exports the asymmetric key material used to
// sign and verify access tokens.
//
// A [Manager] is an explicit instance owned by the caller. It reads a public
// and a private JSON Web Key Set from a [Source], keeps one active signing
// pair plus every verification key keyed by its key id ("kid"), and swaps
// the parsed [Set] atomically so readers never lock.
//
// # Failure handling
//
// [NewManager] tries to load eagerly. A failed load is logged and does not
// abort the process; later calls retry lazily (throttled by RetryInterval)
// and report [ErrNotInitialized] until a load succeeds.
//
// # What this package must NOT do
//
//   - expose private key material through PublicJWKS
//   - sign or parse tokens (see package jwt)
package keys
