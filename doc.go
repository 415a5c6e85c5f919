// Package loginsolver brokers multi-step, challenge-based login flows
// between an asynchronous login worker and repeated short-lived external
// calls.
//
// A login protocol driver runs on its own goroutine and can pause mid-flow —
// slider captcha, SMS one-time code, external-link verification — waiting
// for a human-supplied answer. External callers drive the flow through three
// synchronous operations on [Engine]: Start, SubmitAnswer and Query. Each
// live attempt is a per-principal session holding two zero-capacity hand-off
// channels with asymmetric timeouts: the worker waits minutes for a human,
// callers wait seconds and poll.
//
// # Architecture boundaries
//
// loginsolver is the public surface. It exposes [Engine], [Builder],
// [Config], the collaborator contracts ([Driver], [Solver], [DeviceStore])
// and value types. Session state and the registry live in the session
// sub-package; Redis-backed throttling and fingerprint persistence live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Implement a login protocol or verify credentials — that is the
//     [Driver]'s job, consumed through its narrow interface.
//   - Speak HTTP or define payload encodings; hosts own the transport.
//   - Persist session state: sessions are in-memory only and do not survive
//     a restart.
//
// # Concurrency contract
//
// Engine methods are safe for concurrent use after [Builder.Build]. Within
// one session, hand-offs strictly alternate — the unbuffered channels make
// reordering impossible — and across sessions there is no interaction.
package loginsolver
