// Package authguard keeps login throttling, session validity, and one-time
// code verification correct while the shared distributed cache backing them
// degrades and recovers.
//
// A [Guard], built once per process through [Builder.Build], owns the cache
// connection pool, an in-memory fallback store, and the circuit-breaking
// facade that routes between them. On top of that facade it exposes the
// authentication-adjacent decisions route handlers need: fixed-window rate
// limits, per-account login lockouts with escalating duration, sliding
// sessions with revocation, and single-active one-time codes.
//
// # Degradation contract
//
// Backend unavailability is never surfaced. When the shared cache becomes
// unreachable the facade opens its circuit and serves every call from the
// process-local fallback, then probes its way back after a cooldown. While
// degraded, counters and lifecycles are per-instance rather than global —
// an intentional availability-over-consistency tradeoff during outages.
//
// # What this package must NOT do
//
//   - Decide business authorization (roles, permissions). It only decides
//     whether an authentication-adjacent action may proceed right now.
//   - Own identity data. Accounts and users are opaque identifiers.
//   - Deliver codes. GenerateOTP returns the code; transport is the
//     caller's concern.
//
// Guard methods are safe for concurrent use after Build.
package authguard
