// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"github.com/cloister-foundation/cloister/lib/codec"
)

// MessageKind discriminates the frames exchanged over an established
// session.
type MessageKind uint8

const (
	// KindRequest carries a method invocation from client to server.
	KindRequest MessageKind = 1
	// KindResponse carries the result of a request back to the client.
	KindResponse MessageKind = 2
	// KindClose announces an orderly shutdown of the session. No
	// further frames follow from the sender.
	KindClose MessageKind = 3
)

// Message is the envelope for every frame on an established session.
// Exactly one of Request and Response is set, according to Kind.
type Message struct {
	Kind MessageKind `cbor:"kind"`
	// ID correlates a response with its request. Assigned by the
	// client, echoed verbatim by the server.
	ID       uint64    `cbor:"id,omitempty"`
	Request  *Request  `cbor:"request,omitempty"`
	Response *Response `cbor:"response,omitempty"`
}

// Request is a single method invocation.
type Request struct {
	Method string `cbor:"method"`
	// Args is the CBOR-encoded argument value, decoded by the
	// handler registered for Method. Empty for no-argument methods.
	Args codec.RawMessage `cbor:"args,omitempty"`
}

// Response is the outcome of a request: either a CBOR-encoded success
// value or an error string, never both.
type Response struct {
	Success codec.RawMessage `cbor:"success,omitempty"`
	Error   string           `cbor:"error,omitempty"`
}
