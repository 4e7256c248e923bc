// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewAndBytes(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buffer.Close()

	data := buffer.Bytes()
	if len(data) != 32 {
		t.Fatalf("len(Bytes()) = %d, want 32", len(data))
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d = %d, want zero-filled buffer", i, b)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) succeeded, want error")
	}
	if _, err := New(-1); err == nil {
		t.Error("New(-1) succeeded, want error")
	}
}

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("attestation-key-seed")
	original := append([]byte(nil), source...)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), original) {
		t.Errorf("buffer contents = %q, want %q", buffer.Bytes(), original)
	}
	for i, b := range source {
		if b != 0 {
			t.Fatalf("source byte %d = %d, want zeroed after NewFromBytes", i, b)
		}
	}
}

func TestEqualConstantTime(t *testing.T) {
	buffer, err := NewFromBytes([]byte("sealing-key"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("sealing-key")) {
		t.Error("Equal returned false for identical contents")
	}
	if buffer.Equal([]byte("sealing-keyX")) {
		t.Error("Equal returned true for different length")
	}
	if buffer.Equal([]byte("sealing-kez")) {
		t.Error("Equal returned true for different contents")
	}
}

func TestCloseIsIdempotentAndAccessPanics(t *testing.T) {
	buffer, err := NewFromBytes([]byte("ephemeral"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}

	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes() after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestReadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealing.key")
	if err := os.WriteFile(path, []byte("  key-material\n"), 0600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if got := string(buffer.Bytes()); got != "key-material" {
		t.Errorf("contents = %q, want whitespace trimmed %q", got, "key-material")
	}
}

func TestReadFromPathEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.key")
	if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	if _, err := ReadFromPath(path); err == nil {
		t.Error("ReadFromPath succeeded on whitespace-only file, want error")
	}
}
