// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"context"
	"reflect"

	"github.com/cloister-foundation/cloister/consensus"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/untrusted"
)

// noRuntimeState is the sentinel occupying the runtime-state slot of
// a freshly constructed Context until a handler stores a value.
type noRuntimeState struct{}

// Context is the per-call context passed to every RPC handler. It
// bundles the capabilities a handler needs, keeping trusted and
// untrusted data sources distinguishable at the type level.
//
// A Context belongs to exactly one in-flight call. It must not be
// retained past handler return or shared between concurrent calls;
// the shared fields (Identity, ConsensusVerifier) are themselves safe
// because they are immutable for the life of the process.
type Context struct {
	// IO carries cancellation and deadline for this call. Never
	// nil; propagated unchanged from the enclosing call.
	IO context.Context

	// Identity is the runtime's own signing identity. The same
	// instance is shared across all calls in the process.
	Identity *identity.Identity

	// SessionInfo describes the authenticated transport session the
	// call arrived over. Nil means the call did not arrive over an
	// authenticated session (a local or anonymous call); handlers
	// that require a verified origin must treat nil as
	// unauthenticated and reject, never as "trusted local".
	SessionInfo *SessionInfo

	// ConsensusVerifier validates consensus-layer claims. Handlers
	// must route any externally supplied consensus state through it
	// before trusting the claim.
	ConsensusVerifier consensus.Verifier

	// UntrustedLocalStorage is a borrowed capability to the host's
	// key-value store. Everything read through it is
	// attacker-controlled. The borrow is scoped to this call —
	// handlers must not store the handle beyond return.
	UntrustedLocalStorage untrusted.KeyValue

	// runtimeState holds one value of a handler-chosen type,
	// initially the noRuntimeState sentinel. The Context does not
	// know the concrete type; see SetRuntimeState and RuntimeState.
	runtimeState any
}

// NewContext constructs the context for a single handler invocation.
// No validation is performed and construction cannot fail; all
// failure is deferred to usage.
func NewContext(
	io context.Context,
	id *identity.Identity,
	sessionInfo *SessionInfo,
	verifier consensus.Verifier,
	storage untrusted.KeyValue,
) *Context {
	return &Context{
		IO:                    io,
		Identity:              id,
		SessionInfo:           sessionInfo,
		ConsensusVerifier:     verifier,
		UntrustedLocalStorage: storage,
		runtimeState:          noRuntimeState{},
	}
}

// SetRuntimeState attaches a call-scoped value of the handler's
// choosing to the context, replacing any previously attached value.
// Always succeeds.
func (c *Context) SetRuntimeState(value any) {
	c.runtimeState = value
}

// RuntimeState retrieves the value attached with SetRuntimeState,
// typed as T.
//
// Returns ErrNoRuntimeState if no value has been attached yet, and a
// *RuntimeStateTypeError if the attached value is not of type T. The
// latter is a programming error in the calling subsystem; it is
// surfaced as a recoverable error rather than a panic so dispatch
// can log it and fail the single call.
func RuntimeState[T any](c *Context) (T, error) {
	var zero T
	if _, sentinel := c.runtimeState.(noRuntimeState); sentinel {
		return zero, ErrNoRuntimeState
	}
	value, ok := c.runtimeState.(T)
	if !ok {
		return zero, &RuntimeStateTypeError{
			Requested: reflect.TypeFor[T](),
			Stored:    reflect.TypeOf(c.runtimeState),
		}
	}
	return value, nil
}
