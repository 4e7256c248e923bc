// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloister-foundation/cloister/lib/identity"
)

// Errors returned by verifier implementations.
var (
	ErrInvalidSignature  = errors.New("consensus: invalid header signature")
	ErrBeforeTrustRoot   = errors.New("consensus: header height is below the trust root")
	ErrHeightRegression  = errors.New("consensus: header height regressed")
	ErrTrustRootMismatch = errors.New("consensus: header at trust root height does not match pinned hash")
	ErrHeightNotVerified = errors.New("consensus: no verified header at requested height")
	ErrStateRootMismatch = errors.New("consensus: state root does not match verified header")
)

// Verifier validates consensus-layer claims. A single instance is
// shared read-mostly across all concurrent call contexts.
//
// Handlers must route any externally supplied consensus claim through
// the verifier before acting on it; the call context offers no other
// path from untrusted input to trusted state.
type Verifier interface {
	// VerifyHeader checks a header's signature and its position
	// relative to previously verified state. On success the header
	// becomes part of the verifier's trusted view.
	VerifyHeader(ctx context.Context, header *Header) error

	// VerifyStateRoot checks a claimed state root against the
	// verified header at the given height.
	VerifyStateRoot(ctx context.Context, height uint64, stateRoot [32]byte) error

	// TrustedHeight returns the highest verified height. Zero means
	// nothing beyond the trust root has been verified yet.
	TrustedHeight() uint64
}

// stateRootWindow is how many recently verified heights retain their
// state roots for VerifyStateRoot. Old entries are pruned as new
// headers are verified.
const stateRootWindow = 1024

// TrustRootVerifier verifies headers against an embedded trust root:
// correct consensus-key signature, monotonic height advancement, and
// a pinned hash at the root height. Safe for concurrent use.
type TrustRootVerifier struct {
	root   TrustRoot
	logger *slog.Logger

	mu            sync.RWMutex
	trustedHeight uint64
	stateRoots    map[uint64][32]byte

	// minRetained is a lower bound on the heights still present in
	// stateRoots; zero until the first header is verified. Pruning
	// sweeps the map only when this bound falls below the window
	// floor, so consecutive single-height advances stay cheap.
	minRetained uint64
}

var _ Verifier = (*TrustRootVerifier)(nil)

// NewTrustRootVerifier creates a verifier anchored at root.
func NewTrustRootVerifier(root TrustRoot, logger *slog.Logger) (*TrustRootVerifier, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TrustRootVerifier{
		root:       root,
		logger:     logger,
		stateRoots: make(map[uint64][32]byte),
	}, nil
}

// VerifyHeader checks the header signature against the trust root's
// consensus key and enforces monotonic height advancement. Verifying
// the same height twice is allowed only for an identical header.
func (v *TrustRootVerifier) VerifyHeader(_ context.Context, header *Header) error {
	message, err := header.SigningMessage()
	if err != nil {
		return err
	}
	if !identity.Verify(v.root.PublicKey, SignatureDomain, message, header.Signature) {
		return ErrInvalidSignature
	}

	if header.Height < v.root.Height {
		return fmt.Errorf("%w: height %d, root %d", ErrBeforeTrustRoot, header.Height, v.root.Height)
	}
	if header.Height == v.root.Height {
		hash, err := header.Hash()
		if err != nil {
			return err
		}
		if hash != v.root.Hash {
			return ErrTrustRootMismatch
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if header.Height < v.trustedHeight {
		return fmt.Errorf("%w: height %d, trusted %d", ErrHeightRegression, header.Height, v.trustedHeight)
	}
	if header.Height == v.trustedHeight {
		if existing, ok := v.stateRoots[header.Height]; ok && existing != header.StateRoot {
			// Same height, different contents, both correctly
			// signed: equivocation by the consensus signer.
			return fmt.Errorf("%w: conflicting header at height %d", ErrHeightRegression, header.Height)
		}
	}

	v.trustedHeight = header.Height
	v.stateRoots[header.Height] = header.StateRoot
	if v.minRetained == 0 || header.Height < v.minRetained {
		v.minRetained = header.Height
	}
	if header.Height > stateRootWindow {
		// Heights advance by arbitrary strides, so pruning must drop
		// every entry below the floor, not just the single height at
		// the window's trailing edge.
		if floor := header.Height - stateRootWindow; v.minRetained < floor {
			for height := range v.stateRoots {
				if height < floor {
					delete(v.stateRoots, height)
				}
			}
			v.minRetained = floor
		}
	}

	v.logger.Debug("consensus header verified",
		"height", header.Height,
	)
	return nil
}

// VerifyStateRoot checks stateRoot against the verified header at
// height. Heights outside the retained window, or never verified,
// return ErrHeightNotVerified.
func (v *TrustRootVerifier) VerifyStateRoot(_ context.Context, height uint64, stateRoot [32]byte) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	verified, ok := v.stateRoots[height]
	if !ok {
		return fmt.Errorf("%w: height %d", ErrHeightNotVerified, height)
	}
	if verified != stateRoot {
		return fmt.Errorf("%w: height %d", ErrStateRootMismatch, height)
	}
	return nil
}

// TrustedHeight returns the highest verified height, or zero if no
// header has been verified yet.
func (v *TrustRootVerifier) TrustedHeight() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.trustedHeight
}
