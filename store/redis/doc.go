// Package redis implements refresh.Store and refresh.Rotator on Redis.
//
// # Key layout
//
//	{<prefix>}:rt:<hash>      HASH  one refresh record
//	{<prefix>}:fam:<family>   SET   hashes of a family
//	{<prefix>}:usr:<user>     SET   hashes of a user
//	{<prefix>}:exp            ZSET  hashes scored by expiry (unix ms)
//
// The braces are a Redis Cluster hash tag. The scripts derive record keys
// from ARGV, which Cluster only allows when every key maps to the slot of
// the declared KEYS, so the whole store lives in one slot. A prefix that
// already contains a tag is used unchanged.
//
// Every state transition runs as a Lua script so the conditional revoke and
// the successor insert happen atomically on the server.
//
// # What this package must NOT do
//
//   - Store raw refresh tokens.
//   - Rely on key TTLs for revocation; records disappear only through
//     DeleteExpired.
package redis
