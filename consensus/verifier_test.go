// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/cloister-foundation/cloister/lib/identity"
)

// testChain is a synthetic consensus signer plus its trust root,
// anchored at height 10.
type testChain struct {
	signer *identity.Identity
	root   TrustRoot
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()

	signer, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	chain := &testChain{signer: signer}
	rootHeader := chain.header(t, 10, [32]byte{1})
	rootHash, err := rootHeader.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	chain.root = TrustRoot{
		Height:    10,
		Hash:      rootHash,
		PublicKey: signer.Public(),
	}
	return chain
}

// header builds a correctly signed header at the given height.
func (c *testChain) header(t *testing.T, height uint64, stateRoot [32]byte) *Header {
	t.Helper()

	header := &Header{
		Height:    height,
		Time:      1700000000 + int64(height),
		StateRoot: stateRoot,
	}
	message, err := header.SigningMessage()
	if err != nil {
		t.Fatalf("SigningMessage: %v", err)
	}
	header.Signature = c.signer.Sign(SignatureDomain, message)
	return header
}

func newTestVerifier(t *testing.T, chain *testChain) *TrustRootVerifier {
	t.Helper()
	verifier, err := NewTrustRootVerifier(chain.root, nil)
	if err != nil {
		t.Fatalf("NewTrustRootVerifier: %v", err)
	}
	return verifier
}

func TestVerifyHeaderAdvances(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	// The root height must be re-presented with the exact pinned
	// contents; later heights advance freely.
	if err := verifier.VerifyHeader(ctx, chain.header(t, 10, [32]byte{1})); err != nil {
		t.Fatalf("VerifyHeader(10): %v", err)
	}
	for height := uint64(11); height <= 13; height++ {
		header := chain.header(t, height, [32]byte{byte(height)})
		if err := verifier.VerifyHeader(ctx, header); err != nil {
			t.Fatalf("VerifyHeader(%d): %v", height, err)
		}
	}
	if got := verifier.TrustedHeight(); got != 13 {
		t.Errorf("TrustedHeight = %d, want 13", got)
	}
}

func TestVerifyHeaderRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	// Signed by a key that is not the consensus key.
	impostor, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	header := &Header{Height: 11, Time: 1, StateRoot: [32]byte{2}}
	message, err := header.SigningMessage()
	if err != nil {
		t.Fatalf("SigningMessage: %v", err)
	}
	header.Signature = impostor.Sign(SignatureDomain, message)

	if err := verifier.VerifyHeader(ctx, header); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyHeader = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyHeaderRejectsTamperedFields(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	// Mutate a signed field after signing.
	tampered := chain.header(t, 11, [32]byte{2})
	tampered.StateRoot[0] ^= 0xff

	if err := verifier.VerifyHeader(ctx, tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyHeader on tampered header = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyHeaderBelowTrustRoot(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	header := chain.header(t, 9, [32]byte{9})
	if err := verifier.VerifyHeader(ctx, header); !errors.Is(err, ErrBeforeTrustRoot) {
		t.Errorf("VerifyHeader = %v, want ErrBeforeTrustRoot", err)
	}
}

func TestVerifyHeaderAtRootHeightMustMatchPin(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	// Correctly signed, same height as the root, different contents.
	forged := chain.header(t, 10, [32]byte{0xee})
	if err := verifier.VerifyHeader(ctx, forged); !errors.Is(err, ErrTrustRootMismatch) {
		t.Errorf("VerifyHeader = %v, want ErrTrustRootMismatch", err)
	}
}

func TestVerifyHeaderRejectsRegression(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	if err := verifier.VerifyHeader(ctx, chain.header(t, 15, [32]byte{15})); err != nil {
		t.Fatalf("VerifyHeader(15): %v", err)
	}
	if err := verifier.VerifyHeader(ctx, chain.header(t, 12, [32]byte{12})); !errors.Is(err, ErrHeightRegression) {
		t.Errorf("VerifyHeader(12) after 15 = %v, want ErrHeightRegression", err)
	}
}

func TestVerifyStateRoot(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	stateRoot := [32]byte{0x42}
	if err := verifier.VerifyHeader(ctx, chain.header(t, 11, stateRoot)); err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}

	if err := verifier.VerifyStateRoot(ctx, 11, stateRoot); err != nil {
		t.Errorf("VerifyStateRoot with matching root: %v", err)
	}
	if err := verifier.VerifyStateRoot(ctx, 11, [32]byte{0x43}); !errors.Is(err, ErrStateRootMismatch) {
		t.Errorf("VerifyStateRoot with wrong root = %v, want ErrStateRootMismatch", err)
	}
	if err := verifier.VerifyStateRoot(ctx, 99, stateRoot); !errors.Is(err, ErrHeightNotVerified) {
		t.Errorf("VerifyStateRoot at unverified height = %v, want ErrHeightNotVerified", err)
	}
}

func TestStateRootWindowPruned(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t)
	verifier := newTestVerifier(t, chain)

	if err := verifier.VerifyHeader(ctx, chain.header(t, 10, [32]byte{1})); err != nil {
		t.Fatalf("VerifyHeader(10): %v", err)
	}

	// Advance in strides much larger than one; every height that falls
	// more than stateRootWindow behind the newest must be dropped.
	latestRoot := [32]byte{}
	for height := uint64(5000); height <= 20000; height += 5000 {
		latestRoot = [32]byte{byte(height)}
		if err := verifier.VerifyHeader(ctx, chain.header(t, height, latestRoot)); err != nil {
			t.Fatalf("VerifyHeader(%d): %v", height, err)
		}
	}

	if err := verifier.VerifyStateRoot(ctx, 10, [32]byte{1}); !errors.Is(err, ErrHeightNotVerified) {
		t.Errorf("VerifyStateRoot(10) far outside window = %v, want ErrHeightNotVerified", err)
	}
	prunedHeight := uint64(15000)
	if err := verifier.VerifyStateRoot(ctx, prunedHeight, [32]byte{byte(prunedHeight)}); !errors.Is(err, ErrHeightNotVerified) {
		t.Errorf("VerifyStateRoot(15000) outside window = %v, want ErrHeightNotVerified", err)
	}
	if err := verifier.VerifyStateRoot(ctx, 20000, latestRoot); err != nil {
		t.Errorf("VerifyStateRoot at newest height: %v", err)
	}
	if got := len(verifier.stateRoots); got != 1 {
		t.Errorf("retained %d state roots, want 1", got)
	}
}

func TestNopVerifierAcceptsEverything(t *testing.T) {
	ctx := context.Background()
	verifier := NewInsecureNopVerifier(nil)

	header := &Header{Height: 7, Time: 1, StateRoot: [32]byte{7}}
	if err := verifier.VerifyHeader(ctx, header); err != nil {
		t.Errorf("VerifyHeader: %v", err)
	}
	if err := verifier.VerifyStateRoot(ctx, 7, [32]byte{0xff}); err != nil {
		t.Errorf("VerifyStateRoot: %v", err)
	}
	if got := verifier.TrustedHeight(); got != 7 {
		t.Errorf("TrustedHeight = %d, want 7", got)
	}
}

func TestTrustRootValidate(t *testing.T) {
	root := TrustRoot{Height: 1, PublicKey: []byte("short")}
	if err := root.Validate(); err == nil {
		t.Error("Validate accepted a malformed public key")
	}
}
