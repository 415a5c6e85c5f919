// Package rate provides the Redis-backed fixed-window counters that budget
// login start attempts per principal and per caller IP.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - ls:  — start per-principal
//   - lsi: — start per-IP
//
// # What this package must NOT do
//
//   - Decide when throttling applies (the Engine owns that policy).
//   - Be imported outside the loginsolver module.
package rate
