// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Identity is the runtime's long-term signing identity. Immutable
// after construction; a single instance is shared by every call
// context in the process.
type Identity struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Generate creates a fresh identity from the system's entropy source.
func Generate() (*Identity, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generating keypair: %w", err)
	}
	return &Identity{public: public, private: private}, nil
}

// fromSeed reconstructs an identity from a 32-byte Ed25519 seed, the
// form in which the private key is sealed at rest.
func fromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &Identity{
		public:  private.Public().(ed25519.PublicKey),
		private: private,
	}, nil
}

// Public returns the identity's Ed25519 public key.
func (i *Identity) Public() ed25519.PublicKey {
	return i.public
}

// Sign signs message under the given domain. The message is hashed
// with a BLAKE3 key derived from the domain string, so signatures
// from different domains are mutually unreplayable even over
// identical message bytes.
//
// Domain strings are protocol constants (e.g. "cloister/session/v1").
// Changing one invalidates every signature in that domain.
func (i *Identity) Sign(domain string, message []byte) []byte {
	digest := signingDigest(domain, message)
	return ed25519.Sign(i.private, digest[:])
}

// Verify reports whether signature is a valid domain-separated
// signature of message by the holder of public.
func Verify(public ed25519.PublicKey, domain string, message, signature []byte) bool {
	digest := signingDigest(domain, message)
	return ed25519.Verify(public, digest[:], signature)
}

// Fingerprint returns a short hex identifier for a public key: the
// first 16 hex digits of its BLAKE3 hash. Used in logs and peer
// display, never in security decisions.
func Fingerprint(public ed25519.PublicKey) string {
	sum := blake3.Sum256(public)
	return hex.EncodeToString(sum[:8])
}

// signingDigest computes the domain-separated BLAKE3 digest that is
// actually signed.
func signingDigest(domain string, message []byte) [32]byte {
	var digest [32]byte
	blake3.DeriveKey("cloister signature "+domain, message, digest[:])
	return digest
}
