// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloister-foundation/cloister/consensus"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/untrusted"
)

// batchState stands in for a handler subsystem's accumulator type.
type batchState struct {
	calls int
}

func newTestContext(t *testing.T, sessionInfo *SessionInfo) *Context {
	t.Helper()

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return NewContext(
		context.Background(),
		id,
		sessionInfo,
		consensus.NewInsecureNopVerifier(nil),
		untrusted.NewMemStore(),
	)
}

func TestRuntimeStateNotPresent(t *testing.T) {
	ctx := newTestContext(t, nil)

	if _, err := RuntimeState[*batchState](ctx); !errors.Is(err, ErrNoRuntimeState) {
		t.Errorf("RuntimeState on fresh context = %v, want ErrNoRuntimeState", err)
	}
}

func TestRuntimeStateRoundtrip(t *testing.T) {
	ctx := newTestContext(t, nil)

	state := &batchState{calls: 3}
	ctx.SetRuntimeState(state)

	got, err := RuntimeState[*batchState](ctx)
	if err != nil {
		t.Fatalf("RuntimeState: %v", err)
	}
	if got != state {
		t.Error("RuntimeState returned a different value than was stored")
	}
}

func TestRuntimeStateTypeMismatch(t *testing.T) {
	ctx := newTestContext(t, nil)
	ctx.SetRuntimeState(42)

	got, err := RuntimeState[int](ctx)
	if err != nil || got != 42 {
		t.Fatalf("RuntimeState[int] = (%d, %v), want (42, nil)", got, err)
	}

	_, err = RuntimeState[string](ctx)
	var typeErr *RuntimeStateTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("RuntimeState[string] = %v, want *RuntimeStateTypeError", err)
	}
	if typeErr.Requested.Kind().String() != "string" || typeErr.Stored.Kind().String() != "int" {
		t.Errorf("type error = requested %v stored %v, want string/int", typeErr.Requested, typeErr.Stored)
	}
	// The stored value is untouched by the failed retrieval.
	if got, err := RuntimeState[int](ctx); err != nil || got != 42 {
		t.Errorf("RuntimeState[int] after mismatch = (%d, %v), want (42, nil)", got, err)
	}
}

func TestSetRuntimeStateOverwrites(t *testing.T) {
	ctx := newTestContext(t, nil)

	ctx.SetRuntimeState(&batchState{calls: 1})
	second := &batchState{calls: 2}
	ctx.SetRuntimeState(second)

	got, err := RuntimeState[*batchState](ctx)
	if err != nil {
		t.Fatalf("RuntimeState: %v", err)
	}
	if got != second {
		t.Error("SetRuntimeState did not replace the previous value")
	}

	// Overwriting with a different type works too; the old type is gone.
	ctx.SetRuntimeState("replaced")
	if _, err := RuntimeState[*batchState](ctx); err == nil {
		t.Error("RuntimeState with stale type succeeded after overwrite")
	}
}

func TestRuntimeStateNilValue(t *testing.T) {
	ctx := newTestContext(t, nil)
	ctx.SetRuntimeState(nil)

	// nil is a stored value, not absence.
	_, err := RuntimeState[*batchState](ctx)
	if errors.Is(err, ErrNoRuntimeState) {
		t.Fatal("stored nil reported as not present")
	}
	var typeErr *RuntimeStateTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("RuntimeState over stored nil = %v, want *RuntimeStateTypeError", err)
	}
	if typeErr.Stored != nil {
		t.Errorf("Stored = %v, want nil", typeErr.Stored)
	}
	if typeErr.Error() == "" {
		t.Error("empty error string")
	}
}

func TestSessionInfoNilMeansUnauthenticated(t *testing.T) {
	local := newTestContext(t, nil)
	if local.SessionInfo != nil {
		t.Error("context without a session has non-nil SessionInfo")
	}

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	info := &SessionInfo{
		PeerIdentity:    id.Public(),
		AuthenticatedAt: time.Now(),
	}
	remote := newTestContext(t, info)
	if remote.SessionInfo != info {
		t.Error("SessionInfo not carried through to the context")
	}
}

func TestContextsAreIndependent(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	verifier := consensus.NewInsecureNopVerifier(nil)

	// Two calls sharing the same trust anchors but borrowing
	// different stores.
	first := NewContext(context.Background(), id, nil, verifier, untrusted.NewMemStore())
	second := NewContext(context.Background(), id, nil, verifier, untrusted.NewMemStore())

	first.SetRuntimeState(&batchState{calls: 1})
	if _, err := RuntimeState[*batchState](second); !errors.Is(err, ErrNoRuntimeState) {
		t.Errorf("state set on one context visible on another: %v", err)
	}

	if first.Identity != second.Identity {
		t.Error("shared identity not shared")
	}
}

func TestContextIOPropagation(t *testing.T) {
	io, cancel := context.WithCancel(context.Background())
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ctx := NewContext(io, id, nil, consensus.NewInsecureNopVerifier(nil), untrusted.NewMemStore())

	if ctx.IO != io {
		t.Fatal("IO context not propagated unchanged")
	}
	cancel()
	if ctx.IO.Err() == nil {
		t.Error("cancellation not visible through the context")
	}
}
