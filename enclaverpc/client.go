// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/identity"
)

// Client is one authenticated session to a Server. Calls are
// serialized: a Client carries a single session with one request in
// flight at a time. Safe for concurrent use; concurrent callers
// queue.
type Client struct {
	conn    net.Conn
	channel *secureChannel

	// serverIdentity is the key the server proved during the
	// handshake.
	serverIdentity ed25519.PublicKey

	mu     sync.Mutex
	nextID uint64
	closed bool
}

// DialConfig controls session establishment.
type DialConfig struct {
	// Identity authenticates the client to the server. Nil connects
	// anonymously; the server will dispatch such calls without
	// SessionInfo.
	Identity *identity.Identity

	// ServerIdentity, when non-nil, pins the expected server key.
	// Dial fails with ErrServerIdentityMismatch if the server proves
	// a different one.
	ServerIdentity ed25519.PublicKey
}

// Dial connects to the server's Unix socket and runs the session
// handshake.
func Dial(ctx context.Context, socketPath string, cfg DialConfig) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(handshakeTimeout))
	}
	channel, serverIdentity, err := clientHandshake(conn, cfg.Identity)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session handshake: %w", err)
	}
	conn.SetDeadline(time.Time{})

	if cfg.ServerIdentity != nil && !bytes.Equal(serverIdentity, cfg.ServerIdentity) {
		conn.Close()
		return nil, fmt.Errorf("%w: server is %s", ErrServerIdentityMismatch, identity.Fingerprint(serverIdentity))
	}

	return &Client{conn: conn, channel: channel, serverIdentity: serverIdentity}, nil
}

// ServerIdentity returns the Ed25519 key the server proved during the
// handshake.
func (c *Client) ServerIdentity() ed25519.PublicKey {
	return c.serverIdentity
}

// Call invokes a method and decodes the success response into result.
// A nil args sends no arguments; a nil result discards the response
// value. An error response from the server is returned as an
// *RPCError.
func (c *Client) Call(ctx context.Context, method string, args, result any) error {
	var rawArgs codec.RawMessage
	if args != nil {
		encoded, err := codec.Marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s arguments: %w", method, err)
		}
		rawArgs = encoded
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}

	// Context cancellation or expiry fires an immediate connection
	// deadline, unblocking an in-flight read or write. The failed
	// operation poisons record sequencing, so the session is closed
	// on any transport error.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer func() {
		stop()
		c.conn.SetDeadline(time.Time{})
	}()

	c.nextID++
	id := c.nextID
	request := &Message{
		Kind:    KindRequest,
		ID:      id,
		Request: &Request{Method: method, Args: rawArgs},
	}
	if err := c.channel.writeMessage(request); err != nil {
		c.closeLocked()
		return fmt.Errorf("sending %s request: %w", method, err)
	}

	reply, err := c.channel.readMessage()
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if reply.Kind != KindResponse || reply.Response == nil {
		c.closeLocked()
		return fmt.Errorf("unexpected frame kind %d in response to %s", reply.Kind, method)
	}
	if reply.ID != id {
		c.closeLocked()
		return fmt.Errorf("response id %d does not match request id %d", reply.ID, id)
	}

	if reply.Response.Error != "" {
		return &RPCError{Method: method, Message: reply.Response.Error}
	}
	if result != nil {
		if len(reply.Response.Success) == 0 {
			return fmt.Errorf("%s returned no value", method)
		}
		if err := codec.Unmarshal(reply.Response.Success, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}

// Close announces an orderly shutdown to the server and closes the
// connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	// Best effort; the connection closes either way.
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.channel.writeMessage(&Message{Kind: KindClose})
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
