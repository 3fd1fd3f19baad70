// Package rate provides a Redis-backed fixed-window limiter used by the
// reference server to throttle refresh attempts per client IP.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:rl:<key>".
//
// # What this package must NOT do
//
//   - Decide what a key means. Callers pick IPs, user ids or anything else.
//   - Be imported outside the authcore module.
package rate
