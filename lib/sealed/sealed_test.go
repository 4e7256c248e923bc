// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealUnsealRoundtrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	plaintext := []byte("identity state: signing key seed and session key seed")

	ciphertext, err := Encrypt(append([]byte(nil), plaintext...), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(ciphertext, string(plaintext)) {
		t.Fatal("ciphertext contains plaintext")
	}

	unsealed, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer unsealed.Close()

	if !bytes.Equal(unsealed.Bytes(), plaintext) {
		t.Errorf("unsealed = %q, want %q", unsealed.Bytes(), plaintext)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	sealingKey, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer sealingKey.Close()

	otherKey, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer otherKey.Close()

	ciphertext, err := Encrypt([]byte("sealed state"), []string{sealingKey.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(ciphertext, otherKey.PrivateKey); err == nil {
		t.Error("Decrypt with wrong key succeeded, want error")
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("state"), nil); err == nil {
		t.Error("Encrypt with no recipients succeeded, want error")
	}
}

func TestRecipientForMatchesKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	recipient, err := RecipientFor(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("RecipientFor: %v", err)
	}
	if recipient != keypair.PublicKey {
		t.Errorf("RecipientFor = %q, want %q", recipient, keypair.PublicKey)
	}
}

func TestParseKeys(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey on valid key: %v", err)
	}
	if err := ParsePublicKey("age1notakey"); err == nil {
		t.Error("ParsePublicKey accepted garbage")
	}
	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("ParsePrivateKey on valid key: %v", err)
	}
}
