// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cloister-foundation/cloister/lib/untrusted"
)

// handshakeTimeout bounds the session handshake. A well-behaved
// client completes it immediately after connecting.
const handshakeTimeout = 10 * time.Second

// writeTimeout is how long a single response write may take.
const writeTimeout = 10 * time.Second

// Server accepts sessions on a Unix socket and dispatches the
// requests arriving over them. Each connection is one handshake
// followed by any number of sequential request-response exchanges.
type Server struct {
	socketPath string
	dispatcher *Dispatcher
	storage    untrusted.KeyValue
	logger     *slog.Logger

	// activeConnections tracks live sessions for graceful shutdown.
	// Serve waits for all of them to drain before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath, routing
// calls through the dispatcher with storage as the per-call untrusted
// store.
func NewServer(socketPath string, dispatcher *Dispatcher, storage untrusted.KeyValue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		dispatcher: dispatcher,
		storage:    storage,
		logger:     logger,
	}
}

// Serve listens on the Unix socket and serves sessions until ctx is
// cancelled, then closes open sessions and waits for their handlers
// to finish.
//
// Any stale socket file at the configured path is removed before
// listening, and the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("rpc server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection runs the handshake and then serves requests on the
// session until the client closes it or ctx is cancelled.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Sessions can be long-lived, so blocked reads must be unblocked
	// on shutdown by closing the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	channel, sessionInfo, err := serverHandshake(conn, s.dispatcher.identity)
	if err != nil {
		s.logger.Debug("handshake failed", "error", err)
		return
	}
	conn.SetDeadline(time.Time{})

	peer := "anonymous"
	if sessionInfo != nil {
		peer = sessionInfo.PeerFingerprint()
	}
	s.logger.Debug("session established", "peer", peer)

	for {
		msg, err := channel.readMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("session read failed", "peer", peer, "error", err)
			}
			return
		}

		switch msg.Kind {
		case KindRequest:
			if msg.Request == nil {
				s.logger.Debug("request frame without request body", "peer", peer)
				return
			}
			response := s.dispatcher.Dispatch(ctx, sessionInfo, s.storage, msg.Request)
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := channel.writeMessage(&Message{Kind: KindResponse, ID: msg.ID, Response: response})
			conn.SetWriteDeadline(time.Time{})
			if err != nil {
				s.logger.Debug("response write failed", "peer", peer, "error", err)
				return
			}
		case KindClose:
			return
		default:
			s.logger.Debug("unexpected frame kind", "peer", peer, "kind", msg.Kind)
			return
		}
	}
}
