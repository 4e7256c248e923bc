// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// cloister-call invokes a method on a running cloister-runtime over
// its Unix socket. Arguments are given as JSON and translated to the
// wire encoding; results are printed as JSON. Byte-valued arguments
// are given as base64 text (JSON has no byte type); handlers declare
// such fields as codec.Bytes.
//
//	cloister-call --socket /run/cloister/runtime.sock runtime/status
//	cloister-call --socket ... storage/insert '{"key":"aGk=","value":"dGhlcmU="}'
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/cloister-foundation/cloister/enclaverpc"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/secret"
	"github.com/cloister-foundation/cloister/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion bool
		socketPath  string
		identityDir string
		sealingKey  string
		serverKey   string
		timeout     time.Duration
	)
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.StringVar(&socketPath, "socket", "", "runtime socket path (required)")
	pflag.StringVar(&identityDir, "identity-dir", "", "directory with a sealed client identity (anonymous if unset)")
	pflag.StringVar(&sealingKey, "sealing-key", "", "age key file unsealing the client identity, or - for stdin")
	pflag.StringVar(&serverKey, "server-key", "", "hex Ed25519 key to pin the server identity to")
	pflag.DurationVar(&timeout, "timeout", 30*time.Second, "overall call timeout")
	pflag.Parse()

	if showVersion {
		fmt.Printf("cloister-call %s\n", version.Info())
		return nil
	}

	args := pflag.Args()
	if socketPath == "" || len(args) < 1 || len(args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: cloister-call --socket <path> [flags] <method> [json-args]\n")
		pflag.PrintDefaults()
		return fmt.Errorf("invalid arguments")
	}
	method := args[0]

	// Decode JSON arguments into a generic value; the codec re-encodes
	// it as CBOR for the wire.
	var callArgs any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("parsing arguments: %w", err)
		}
	}

	cfg := enclaverpc.DialConfig{}

	if identityDir != "" {
		if sealingKey == "" {
			return fmt.Errorf("--sealing-key is required with --identity-dir")
		}
		key, err := secret.ReadFromPath(sealingKey)
		if err != nil {
			return fmt.Errorf("reading sealing key: %w", err)
		}
		defer key.Close()
		id, err := identity.Load(identityDir, key)
		if err != nil {
			return fmt.Errorf("loading client identity: %w", err)
		}
		cfg.Identity = id
	}

	if serverKey != "" {
		decoded, err := hex.DecodeString(serverKey)
		if err != nil {
			return fmt.Errorf("parsing --server-key: %w", err)
		}
		if len(decoded) != ed25519.PublicKeySize {
			return fmt.Errorf("--server-key is %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
		}
		cfg.ServerIdentity = ed25519.PublicKey(decoded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := enclaverpc.Dial(ctx, socketPath, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	var result any
	if err := client.Call(ctx, method, callArgs, &result); err != nil {
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
