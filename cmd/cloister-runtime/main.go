// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// cloister-runtime is the Cloister runtime daemon. It loads the
// sealed identity, opens the untrusted local store, constructs the
// consensus verifier from configuration, and serves enclave RPC on a
// Unix socket until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloister-foundation/cloister/consensus"
	"github.com/cloister-foundation/cloister/enclaverpc"
	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/config"
	"github.com/cloister-foundation/cloister/lib/identity"
	"github.com/cloister-foundation/cloister/lib/secret"
	"github.com/cloister-foundation/cloister/lib/untrusted"
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
		configPath  string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&configPath, "config", "", "path to cloister.yaml (overrides CLOISTER_CONFIG)")
	flag.Parse()

	if showVersion {
		fmt.Printf("cloister-runtime %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := cfg.Log.NewLogger()

	// Read the sealing key before the signal context exists so a
	// prompt on stdin ("-") is not interrupted by startup signals.
	if cfg.Identity.SealingKeyFile == "" {
		return fmt.Errorf("identity.sealing_key_file is required")
	}
	sealingKey, err := secret.ReadFromPath(cfg.Identity.SealingKeyFile)
	if err != nil {
		return fmt.Errorf("reading sealing key: %w", err)
	}
	defer sealingKey.Close()

	id, generated, err := identity.LoadOrGenerate(cfg.Identity.Dir, sealingKey, logger)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	logger.Info("identity ready",
		"fingerprint", identity.Fingerprint(id.Public()),
		"generated", generated,
	)

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return err
	}

	var storage untrusted.KeyValue
	if cfg.Storage.Path != "" {
		store, err := untrusted.OpenSQLite(cfg.Storage.Path, logger)
		if err != nil {
			return fmt.Errorf("opening untrusted store: %w", err)
		}
		defer store.Close()
		storage = store
		logger.Info("untrusted store open", "path", cfg.Storage.Path)
	} else {
		storage = untrusted.NewMemStore()
		logger.Warn("untrusted store is in-memory; contents are lost on restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := enclaverpc.NewDispatcher(id, verifier, logger)
	registerRuntimeMethods(dispatcher)

	server := enclaverpc.NewServer(cfg.Server.SocketPath, dispatcher, storage, logger)

	logger.Info("runtime starting",
		"socket", cfg.Server.SocketPath,
		"consensus_mode", string(cfg.Consensus.Mode),
		"methods", dispatcher.Methods(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("runtime stopped")
	return nil
}

// buildVerifier constructs the consensus verifier selected by the
// configuration.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (consensus.Verifier, error) {
	switch cfg.Consensus.Mode {
	case config.TrustRootMode:
		root, err := cfg.Consensus.TrustRoot.Parse()
		if err != nil {
			return nil, err
		}
		return consensus.NewTrustRootVerifier(root, logger)
	case config.InsecureMode:
		return consensus.NewInsecureNopVerifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown consensus mode %q", cfg.Consensus.Mode)
	}
}

// statusResult is the response of the built-in status method.
type statusResult struct {
	Fingerprint   string   `cbor:"fingerprint"`
	TrustedHeight uint64   `cbor:"trusted_height"`
	Methods       []string `cbor:"methods"`
	UptimeSeconds int64    `cbor:"uptime_seconds"`
	Version       string   `cbor:"version"`
}

// registerRuntimeMethods installs the methods every runtime serves
// regardless of application handlers.
func registerRuntimeMethods(dispatcher *enclaverpc.Dispatcher) {
	startedAt := time.Now()

	enclaverpc.HandleTyped(dispatcher, "runtime/status", func(ctx *enclaverpc.Context, _ struct{}) (statusResult, error) {
		return statusResult{
			Fingerprint:   identity.Fingerprint(ctx.Identity.Public()),
			TrustedHeight: ctx.ConsensusVerifier.TrustedHeight(),
			Methods:       dispatcher.Methods(),
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
			Version:       version.Short(),
		}, nil
	})

	enclaverpc.HandleTyped(dispatcher, "runtime/verify-header", func(ctx *enclaverpc.Context, header consensus.Header) (uint64, error) {
		if err := ctx.ConsensusVerifier.VerifyHeader(ctx.IO, &header); err != nil {
			return 0, err
		}
		return ctx.ConsensusVerifier.TrustedHeight(), nil
	})

	// Byte arguments are codec.Bytes so cloister-call's JSON bridge
	// (base64 text strings) decodes alongside CBOR byte strings.
	enclaverpc.HandleTyped(dispatcher, "storage/get", func(ctx *enclaverpc.Context, key codec.Bytes) ([]byte, error) {
		return ctx.UntrustedLocalStorage.Get(ctx.IO, key)
	})

	enclaverpc.HandleTyped(dispatcher, "storage/insert", func(ctx *enclaverpc.Context, args struct {
		Key   codec.Bytes `cbor:"key"`
		Value codec.Bytes `cbor:"value"`
	}) (struct{}, error) {
		// Writes require an authenticated caller; reads are open.
		if ctx.SessionInfo == nil {
			return struct{}{}, fmt.Errorf("storage/insert requires an authenticated session")
		}
		return struct{}{}, ctx.UntrustedLocalStorage.Insert(ctx.IO, args.Key, args.Value)
	})
}
