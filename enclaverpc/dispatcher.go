// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloister-foundation/cloister/consensus"
	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/untrusted"
)

// Handler processes one call. The raw argument is the CBOR-encoded
// request arguments; the returned value is marshaled as the success
// response, or nil for an empty success. Returning an error produces
// an error response carrying err.Error().
type Handler func(ctx *Context, args codec.RawMessage) (any, error)

// Dispatcher routes requests to registered method handlers,
// constructing a fresh Context for every call from the process-wide
// trust anchors plus the per-call session and storage handles.
//
// Register methods with Handle before serving; the method table is
// read-only afterwards, so dispatch needs no locking.
type Dispatcher struct {
	identity *identity.Identity
	verifier consensus.Verifier
	logger   *slog.Logger
	methods  map[string]Handler

	// OnComplete, when set, runs after every successful handler with
	// the call's Context, before the response is encoded. This is
	// where the dispatch layer reads back any runtime state the
	// handler attached (e.g. to commit an accumulated batch). An
	// error fails the call.
	OnComplete func(ctx *Context, request *Request) error
}

// NewDispatcher creates a dispatcher bound to the runtime's identity
// and consensus verifier.
func NewDispatcher(id *identity.Identity, verifier consensus.Verifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		identity: id,
		verifier: verifier,
		logger:   logger,
		methods:  make(map[string]Handler),
	}
}

// Handle registers a handler for the given method name. Panics on a
// duplicate registration: that is a wiring bug, not a runtime
// condition.
func (d *Dispatcher) Handle(method string, handler Handler) {
	if _, exists := d.methods[method]; exists {
		panic(fmt.Sprintf("enclaverpc: duplicate handler for method %q", method))
	}
	d.methods[method] = handler
}

// HandleTyped registers a handler with typed arguments and result.
// Arguments are decoded from CBOR before the handler runs; a decode
// failure becomes an error response without invoking the handler.
func HandleTyped[Args any, Result any](d *Dispatcher, method string, handler func(ctx *Context, args Args) (Result, error)) {
	d.Handle(method, func(ctx *Context, raw codec.RawMessage) (any, error) {
		var args Args
		if len(raw) > 0 {
			if err := codec.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", method, err)
			}
		}
		return handler(ctx, args)
	})
}

// Dispatch executes one request and produces its response. The
// sessionInfo is nil for local and anonymous calls; storage is the
// host's untrusted store, lent to the handler for the duration of
// this call only.
func (d *Dispatcher) Dispatch(io context.Context, sessionInfo *SessionInfo, storage untrusted.KeyValue, request *Request) *Response {
	handler, exists := d.methods[request.Method]
	if !exists {
		return &Response{Error: fmt.Sprintf("unknown method %q", request.Method)}
	}

	ctx := NewContext(io, d.identity, sessionInfo, d.verifier, storage)

	result, err := handler(ctx, request.Args)
	if err != nil {
		d.logger.Debug("call failed",
			"method", request.Method,
			"error", err,
		)
		return &Response{Error: err.Error()}
	}

	if d.OnComplete != nil {
		if err := d.OnComplete(ctx, request); err != nil {
			d.logger.Debug("call post-processing failed",
				"method", request.Method,
				"error", err,
			)
			return &Response{Error: err.Error()}
		}
	}

	response := &Response{}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			d.logger.Error("marshaling response failed",
				"method", request.Method,
				"error", err,
			)
			return &Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)}
		}
		response.Success = data
	}
	return response
}

// Methods returns the registered method names, for introspection.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	return names
}
