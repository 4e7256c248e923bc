// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/sealed"
	"github.com/cloister-foundation/cloister/lib/secret"
)

const (
	sealedKeyFile = "identity.sealed"
	publicKeyFile = "identity.pub"
)

// sealedState is the CBOR payload inside the sealed identity file.
// Only ever serialized as CBOR, then age-encrypted.
type sealedState struct {
	Version int    `cbor:"v"`
	Seed    []byte `cbor:"seed"`
}

// Save seals the identity's private seed to the given sealing key and
// writes it to dir, alongside the plaintext public key in hex. The
// sealed file has 0600 permissions; the public file 0644.
func (i *Identity) Save(dir string, sealingKey *secret.Buffer) error {
	recipient, err := sealed.RecipientFor(sealingKey)
	if err != nil {
		return fmt.Errorf("identity: deriving sealing recipient: %w", err)
	}

	// Seed returns a fresh copy of the private seed; zero it as soon
	// as the plaintext encoding exists.
	state := sealedState{Version: 1, Seed: i.private.Seed()}
	plaintext, err := codec.Marshal(state)
	secret.Zero(state.Seed)
	if err != nil {
		return fmt.Errorf("identity: encoding sealed state: %w", err)
	}

	ciphertext, err := sealed.Encrypt(plaintext, []string{recipient})
	secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("identity: sealing: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, sealedKeyFile), []byte(ciphertext), 0600); err != nil {
		return fmt.Errorf("identity: writing sealed key: %w", err)
	}
	publicHex := hex.EncodeToString(i.public)
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), []byte(publicHex+"\n"), 0644); err != nil {
		return fmt.Errorf("identity: writing public key: %w", err)
	}
	return nil
}

// Load unseals the identity stored in dir using the given sealing
// key. Returns an error if the sealed file is missing, the sealing
// key is wrong, or the unsealed state is malformed.
func Load(dir string, sealingKey *secret.Buffer) (*Identity, error) {
	ciphertext, err := os.ReadFile(filepath.Join(dir, sealedKeyFile))
	if err != nil {
		return nil, fmt.Errorf("identity: reading sealed key: %w", err)
	}

	plaintext, err := sealed.Decrypt(string(ciphertext), sealingKey)
	if err != nil {
		return nil, fmt.Errorf("identity: unsealing: %w", err)
	}
	defer plaintext.Close()

	var state sealedState
	if err := codec.Unmarshal(plaintext.Bytes(), &state); err != nil {
		return nil, fmt.Errorf("identity: decoding sealed state: %w", err)
	}
	if state.Version != 1 {
		return nil, fmt.Errorf("identity: unsupported sealed state version %d", state.Version)
	}

	loaded, err := fromSeed(state.Seed)
	secret.Zero(state.Seed)
	if err != nil {
		return nil, err
	}

	// Cross-check against the plaintext public key file when present.
	// A mismatch means the host swapped one of the files.
	publicBytes, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err == nil {
		expected, decodeErr := hex.DecodeString(trimNewline(string(publicBytes)))
		if decodeErr != nil || !loaded.public.Equal(ed25519.PublicKey(expected)) {
			return nil, fmt.Errorf("identity: public key file does not match sealed key")
		}
	}

	return loaded, nil
}

// LoadOrGenerate loads an existing sealed identity from dir, or
// generates and seals a new one if none exists. Returns the identity
// and whether it was newly generated.
//
// A sealed file that exists but cannot be unsealed is an error, not a
// trigger for regeneration — silently minting a new identity would
// orphan everything signed by the old one.
func LoadOrGenerate(dir string, sealingKey *secret.Buffer, logger *slog.Logger) (*Identity, bool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if _, err := os.Stat(filepath.Join(dir, sealedKeyFile)); err == nil {
		loaded, err := Load(dir, sealingKey)
		if err != nil {
			return nil, false, err
		}
		logger.Info("identity unsealed", "fingerprint", Fingerprint(loaded.public))
		return loaded, false, nil
	}

	generated, err := Generate()
	if err != nil {
		return nil, false, err
	}
	if err := generated.Save(dir, sealingKey); err != nil {
		return nil, false, err
	}
	logger.Info("identity generated and sealed", "fingerprint", Fingerprint(generated.public))
	return generated, true, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
