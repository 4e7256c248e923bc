// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloister-foundation/cloister/consensus"
	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/untrusted"
)

type echoArgs struct {
	Value string `cbor:"value"`
}

type echoResult struct {
	Value string `cbor:"value"`
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return NewDispatcher(id, consensus.NewInsecureNopVerifier(nil), nil)
}

func dispatch(t *testing.T, d *Dispatcher, method string, args any) *Response {
	t.Helper()
	var raw codec.RawMessage
	if args != nil {
		encoded, err := codec.Marshal(args)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		raw = encoded
	}
	return d.Dispatch(context.Background(), nil, untrusted.NewMemStore(), &Request{Method: method, Args: raw})
}

func TestDispatchTypedHandler(t *testing.T) {
	d := newTestDispatcher(t)
	HandleTyped(d, "echo", func(_ *Context, args echoArgs) (echoResult, error) {
		return echoResult{Value: args.Value}, nil
	})

	response := dispatch(t, d, "echo", echoArgs{Value: "hello"})
	if response.Error != "" {
		t.Fatalf("dispatch error: %s", response.Error)
	}
	var result echoResult
	if err := codec.Unmarshal(response.Success, &result); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if result.Value != "hello" {
		t.Errorf("echo = %q, want %q", result.Value, "hello")
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDispatcher(t)

	response := dispatch(t, d, "no-such-method", nil)
	if response.Error == "" || !strings.Contains(response.Error, "no-such-method") {
		t.Errorf("unknown method response = %+v, want error naming the method", response)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle("fail", func(*Context, codec.RawMessage) (any, error) {
		return nil, errors.New("nope")
	})

	response := dispatch(t, d, "fail", nil)
	if response.Error != "nope" {
		t.Errorf("error = %q, want %q", response.Error, "nope")
	}
	if len(response.Success) != 0 {
		t.Error("error response carries a success value")
	}
}

func TestDispatchDuplicateRegistrationPanics(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle("x", func(*Context, codec.RawMessage) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	d.Handle("x", func(*Context, codec.RawMessage) (any, error) { return nil, nil })
}

func TestDispatchFreshContextPerCall(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle("stateful", func(ctx *Context, _ codec.RawMessage) (any, error) {
		// Every call must start with an empty slot.
		if _, err := RuntimeState[int](ctx); !errors.Is(err, ErrNoRuntimeState) {
			return nil, errors.New("state leaked from a previous call")
		}
		ctx.SetRuntimeState(1)
		return nil, nil
	})

	store := untrusted.NewMemStore()
	for i := 0; i < 3; i++ {
		response := d.Dispatch(context.Background(), nil, store, &Request{Method: "stateful"})
		if response.Error != "" {
			t.Fatalf("call %d: %s", i, response.Error)
		}
	}
}

func TestDispatchOnComplete(t *testing.T) {
	d := newTestDispatcher(t)
	HandleTyped(d, "accumulate", func(ctx *Context, args echoArgs) (echoResult, error) {
		ctx.SetRuntimeState(&batchState{calls: len(args.Value)})
		return echoResult{Value: args.Value}, nil
	})

	var observed *batchState
	d.OnComplete = func(ctx *Context, request *Request) error {
		state, err := RuntimeState[*batchState](ctx)
		if err != nil {
			return err
		}
		observed = state
		return nil
	}

	response := dispatch(t, d, "accumulate", echoArgs{Value: "abc"})
	if response.Error != "" {
		t.Fatalf("dispatch error: %s", response.Error)
	}
	if observed == nil || observed.calls != 3 {
		t.Errorf("OnComplete observed %+v, want calls=3", observed)
	}

	// An OnComplete failure fails the call.
	d.OnComplete = func(*Context, *Request) error { return errors.New("commit failed") }
	response = dispatch(t, d, "accumulate", echoArgs{Value: "x"})
	if response.Error != "commit failed" {
		t.Errorf("error = %q, want %q", response.Error, "commit failed")
	}
}

func TestDispatchBadArguments(t *testing.T) {
	d := newTestDispatcher(t)
	HandleTyped(d, "typed", func(_ *Context, args echoArgs) (echoResult, error) {
		return echoResult{Value: args.Value}, nil
	})

	response := d.Dispatch(context.Background(), nil, untrusted.NewMemStore(), &Request{
		Method: "typed",
		Args:   codec.RawMessage{0xff, 0xff},
	})
	if response.Error == "" {
		t.Error("malformed arguments accepted")
	}
}
