// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// InsecureNopVerifier accepts every header and state root without
// checking anything. For local development and tests only — a
// runtime configured with it has no consensus trust whatsoever.
//
// The first use logs a warning so the configuration is visible in
// production logs if it ever leaks there.
type InsecureNopVerifier struct {
	logger   *slog.Logger
	warnOnce sync.Once
	height   atomic.Uint64
}

var _ Verifier = (*InsecureNopVerifier)(nil)

// NewInsecureNopVerifier creates a verifier that verifies nothing.
func NewInsecureNopVerifier(logger *slog.Logger) *InsecureNopVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsecureNopVerifier{logger: logger}
}

// VerifyHeader accepts the header unconditionally.
func (v *InsecureNopVerifier) VerifyHeader(_ context.Context, header *Header) error {
	v.warn()
	if header.Height > v.height.Load() {
		v.height.Store(header.Height)
	}
	return nil
}

// VerifyStateRoot accepts the state root unconditionally.
func (v *InsecureNopVerifier) VerifyStateRoot(context.Context, uint64, [32]byte) error {
	v.warn()
	return nil
}

// TrustedHeight returns the highest height ever passed to
// VerifyHeader. Nothing about it is actually trusted.
func (v *InsecureNopVerifier) TrustedHeight() uint64 {
	return v.height.Load()
}

func (v *InsecureNopVerifier) warn() {
	v.warnOnce.Do(func() {
		v.logger.Warn("consensus verification is DISABLED (InsecureNopVerifier in use)")
	})
}
