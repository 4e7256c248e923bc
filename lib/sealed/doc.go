// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for enclave
// state at rest. It wraps filippo.io/age for the specific operations
// Cloister needs: generate x25519 sealing keypairs, encrypt identity
// state to the host's sealing key, and decrypt it on restart.
//
// This is the software analogue of hardware sealing: the runtime's
// long-term keys never touch the host filesystem in plaintext. The
// sealing private key is provisioned out of band (see
// secret.ReadFromPath) and is the only way to recover sealed state.
//
// Ciphertext is base64-encoded so it can be embedded in CBOR or JSON
// state files. Callers pass plaintext []byte to [Encrypt] and receive
// a base64 string; [Decrypt] accepts a base64 string and returns
// plaintext. Sealing private keys and decrypted plaintext are carried
// in [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 sealing keypair
//   - [Encrypt] / [Decrypt] -- seal and unseal state blobs
//   - [RecipientFor] -- derive the public recipient from a private key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Depends on lib/secret for secure memory allocation. Used by
// lib/identity for sealed key persistence.
package sealed
