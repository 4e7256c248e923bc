// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package enclaverpc implements the runtime's RPC layer: the per-call
// [Context] handed to every handler, the method [Dispatcher], and the
// authenticated sessions calls arrive over.
//
// # The call context
//
// Context is where the runtime's trust boundary is made concrete.
// Each handler invocation receives exactly one Context carrying:
//
//   - the I/O context (cancellation and deadline, propagated
//     unchanged from the caller)
//   - the process identity (shared, immutable)
//   - session info for the transport session the call arrived over,
//     or nil for local calls
//   - the consensus verifier (the only path that promotes untrusted
//     data to trusted)
//   - a borrowed handle to untrusted host storage
//   - a runtime-state slot where a handler subsystem can stash one
//     value of its own choosing (e.g. a transaction batch
//     accumulator) for later stages of the same call
//
// Trusted and untrusted capabilities are distinct Go types, so
// handler code cannot pass one where the other is expected. The
// untrusted storage handle is borrowed for the duration of the call:
// handlers must not retain it past return.
//
// Contexts are call-scoped. The dispatcher constructs a fresh one per
// invocation and drops it afterward; nothing is shared between
// concurrent calls except the immutable trust anchors.
//
// # Sessions
//
// Calls arrive over mutually authenticated encrypted sessions:
// X25519 ephemeral key exchange, HKDF-derived per-direction
// ChaCha20-Poly1305 keys, and Ed25519 signatures binding the
// transcript to long-term identities. Clients may connect
// anonymously; such calls are dispatched without SessionInfo, and
// handlers requiring an authenticated origin must reject them.
//
// Key exports:
//
//   - [Context], [NewContext], [RuntimeState] -- the per-call context
//   - [Dispatcher] -- method registry and per-call dispatch
//   - [Server] / [Client] -- session-oriented transport over a Unix
//     socket
//
// Wire encoding is lib/codec CBOR throughout.
package enclaverpc
