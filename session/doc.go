// Package session provides the per-principal login session: a small state
// machine plus a two-party rendezvous, and the registry that owns all live
// sessions.
//
// # Rendezvous
//
// Each [Session] carries two unbuffered channels, one per direction. A send
// completes only while the counterpart is receiving, so exactly one challenge
// round can be in flight per session: a retried answer cannot queue up behind
// a stale one, and the worker cannot post a second challenge before the first
// answer is consumed. Every blocking operation is deadline-bound; a timeout
// is the only way a stuck hand-off is abandoned.
//
// # Architecture boundaries
//
// This package owns the [Session] model, its hand-off primitives, and the
// [Registry] with its TTL sweeper. It does NOT run login protocols, interpret
// answers, or decide when a session may be replaced — those responsibilities
// belong to the Engine.
//
// # What this package must NOT do
//
//   - Import loginsolver (no upward imports).
//   - Block without a deadline.
//   - Evict a session whose worker can still be waiting (the Engine validates
//     that the registry TTL exceeds the worker's await window).
package session
