// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity manages the runtime's long-term cryptographic
// identity: the Ed25519 keypair that signs session handshakes and
// attestation material.
//
// One [Identity] exists per process. It is created (or unsealed) at
// startup, shared by pointer across every concurrent call context,
// and never mutated afterward — sharing an immutable identity is
// what makes it safe to hand to every in-flight call without
// locking.
//
// All signatures are domain-separated: [Identity.Sign] hashes the
// message under a BLAKE3 key derived from a caller-supplied domain
// string before signing, so a signature produced for one purpose
// (say, a session transcript) can never be replayed as another (a
// consensus header endorsement).
//
// At rest, the private key is sealed with age to the host-provisioned
// sealing key (lib/sealed) — the software analogue of hardware
// sealing. The public half is written alongside in plain hex for
// operator tooling.
//
// Key exports:
//
//   - [Identity] -- the process identity; [Generate] for a fresh one
//   - [LoadOrGenerate] -- the startup path: unseal or create-and-seal
//   - [Identity.Sign] / [Verify] -- domain-separated signatures
//   - [Fingerprint] -- short BLAKE3 identifier for logs and peers
//
// Depends on lib/sealed, lib/secret, lib/codec, and zeebo/blake3.
package identity
