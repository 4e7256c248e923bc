// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package untrusted provides the runtime's handle to host-side
// key-value storage.
//
// Everything behind the [KeyValue] interface lives outside the trust
// boundary: the host can return stale values, corrupted values, or
// values for the wrong key, and can drop writes entirely. Handlers
// must treat results as advisory — a cache, never an authority — and
// must not base security decisions on them without independent
// verification through the consensus verifier.
//
// The interface is deliberately a distinct type from every trusted
// capability on the call context so that an untrusted value cannot be
// passed where a trusted one is expected.
//
// Two implementations:
//
//   - [SQLiteStore] -- the production store, a single-table SQLite
//     database on the host filesystem with transparent zstd
//     compression of large values.
//   - [MemStore] -- an in-process map for tests and loopback runs.
//
// Key exports:
//
//   - [KeyValue] -- the storage capability borrowed by call contexts
//   - [ErrNotFound] -- sentinel for missing keys
//   - [OpenSQLite] / [NewMemStore] -- constructors
//
// Depends on lib/sqlitepool and klauspost/compress.
package untrusted
