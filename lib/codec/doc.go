// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Cloister's standard CBOR encoding configuration.
//
// Cloister uses two serialization formats with a clear boundary:
//
//   - CBOR for everything that crosses the enclave boundary or is
//     persisted: enclave RPC frames, session handshake messages,
//     consensus headers, sealed identity state, and values in the
//     untrusted local store.
//   - JSON for operator-facing output only (cloister-call --json,
//     log records).
//
// This package provides the shared CBOR encoding and decoding modes
// so that every Cloister package encodes identically without
// duplicating configuration. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Determinism matters here
// beyond tidiness — signatures and hashes are computed over encoded
// bytes, so the same logical value must always produce identical
// bytes regardless of which component encoded it.
//
// For buffer-oriented operations (sealed files, store values):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (RPC connections):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// CBOR is self-delimiting, so streams need no extra framing.
package codec
