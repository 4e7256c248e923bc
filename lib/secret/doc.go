// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for enclave key
// material: the runtime's long-term signing key, session private
// keys, and the host-provided sealing key.
//
// [Buffer] allocates memory outside the Go heap via
// mmap(MAP_ANONYMOUS), locks it into physical RAM via mlock
// (preventing swap), and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close, the memory is zeroed, unlocked,
// and unmapped. Because the memory lives outside the Go heap, the
// garbage collector cannot copy or relocate it, so key material does
// not persist in stray heap copies after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a key file (or stdin with "-")
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy, for API boundaries that demand a
// string). [Buffer.Equal] compares in constant time. After Close,
// any access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. No Cloister-internal
// dependencies. Imported by lib/sealed and lib/identity.
package secret
