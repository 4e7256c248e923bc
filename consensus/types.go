// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"crypto/ed25519"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/cloister-foundation/cloister/lib/codec"
)

// SignatureDomain is the domain string under which consensus headers
// are signed (see identity.Sign). Protocol constant.
const SignatureDomain = "cloister/consensus-header/v1"

// Header is a consensus-layer block header as delivered by the host.
// Until VerifyHeader accepts it, every field is an unverified claim.
type Header struct {
	// Height is the block height this header commits to.
	Height uint64 `cbor:"height"`

	// Time is the block timestamp, Unix seconds.
	Time int64 `cbor:"time"`

	// StateRoot commits to the consensus state at this height.
	StateRoot [32]byte `cbor:"state_root"`

	// Signature is the consensus signing key's domain-separated
	// signature over the header's signing message.
	Signature []byte `cbor:"signature,omitempty"`
}

// SigningMessage returns the canonical bytes covered by the header
// signature: the deterministic CBOR encoding of the header with the
// signature field cleared.
func (h *Header) SigningMessage() ([]byte, error) {
	unsigned := *h
	unsigned.Signature = nil
	message, err := codec.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("consensus: encoding header: %w", err)
	}
	return message, nil
}

// Hash returns the header's BLAKE3 hash, computed over the signing
// message. This is the value a TrustRoot pins.
func (h *Header) Hash() ([32]byte, error) {
	var sum [32]byte
	message, err := h.SigningMessage()
	if err != nil {
		return sum, err
	}
	blake3.DeriveKey("cloister consensus header hash", message, sum[:])
	return sum, nil
}

// TrustRoot is the embedded trust anchor: a known-good header hash at
// a known height, plus the consensus signing key. Provisioned with
// the runtime, never learned from the host.
type TrustRoot struct {
	// Height of the pinned header.
	Height uint64 `yaml:"height" cbor:"height"`

	// Hash is the pinned header's hash (see Header.Hash).
	Hash [32]byte `yaml:"-" cbor:"hash"`

	// PublicKey is the Ed25519 consensus signing key.
	PublicKey ed25519.PublicKey `yaml:"-" cbor:"public_key"`
}

// Validate checks structural validity of the trust root.
func (r *TrustRoot) Validate() error {
	if len(r.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("consensus: trust root public key has %d bytes, want %d",
			len(r.PublicKey), ed25519.PublicKeySize)
	}
	return nil
}
