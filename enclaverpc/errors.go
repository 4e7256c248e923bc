// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNoRuntimeState is returned by RuntimeState when no handler has
// attached a value to the context yet. Expected during early pipeline
// stages; callers typically fall back to a default.
var ErrNoRuntimeState = errors.New("enclaverpc: no runtime state attached")

// RuntimeStateTypeError reports a RuntimeState retrieval whose
// requested type does not match the value actually stored. This is a
// programming error in the calling subsystem, surfaced as a typed
// error so the caller can log it instead of crashing the runtime.
//
//	var typeErr *enclaverpc.RuntimeStateTypeError
//	if errors.As(err, &typeErr) { ... }
type RuntimeStateTypeError struct {
	// Requested is the type the caller asked for.
	Requested reflect.Type
	// Stored is the type of the value in the slot. Nil if a handler
	// stored an untyped nil.
	Stored reflect.Type
}

func (e *RuntimeStateTypeError) Error() string {
	stored := "<nil>"
	if e.Stored != nil {
		stored = e.Stored.String()
	}
	return fmt.Sprintf("enclaverpc: runtime state is %s, not %s", stored, e.Requested)
}

// RPCError is the client-side representation of an error response
// from the server. The message is whatever the remote handler
// returned; it carries no structured cause.
type RPCError struct {
	// Method is the method whose call failed.
	Method string
	// Message is the error string from the remote handler.
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("enclaverpc: %s: %s", e.Method, e.Message)
}
