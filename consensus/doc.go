// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package consensus provides the verifier capability that call
// handlers use to check consensus-layer claims.
//
// The verifier is the only bridge from untrusted to trusted data in
// the runtime: a value read from the host (untrusted storage, RPC
// arguments) becomes trustworthy only after the claim it represents
// has been checked against verified consensus state. The call context
// carries a shared [Verifier] so every handler has this bridge at
// hand; nothing else on the context can perform that promotion.
//
// [TrustRootVerifier] is the production implementation. It is
// initialized with a [TrustRoot] — a height, header hash, and
// consensus signing key baked in at provisioning time — and accepts
// headers that are correctly signed and advance monotonically from
// that root. Verified state roots are retained in a bounded window so
// handlers can check state claims against recently verified heights.
//
// [InsecureNopVerifier] accepts everything and exists for local
// development only. It logs a warning on first use so a misconfigured
// production deployment is at least loud about it.
//
// Key exports:
//
//   - [Verifier] -- the capability interface carried by call contexts
//   - [Header], [TrustRoot] -- consensus-layer types
//   - [NewTrustRootVerifier] / [NewInsecureNopVerifier]
//
// Depends on lib/identity (domain-separated signatures), lib/codec,
// and zeebo/blake3.
package consensus
