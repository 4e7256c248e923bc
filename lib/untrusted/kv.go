// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package untrusted

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the host store has no value for
// the key. Note that the host deleting a key at will is within its
// power — absence is not evidence that the value never existed.
var ErrNotFound = errors.New("untrusted: key not found")

// KeyValue is a capability to the host's local key-value store. Keys
// and values are opaque byte strings.
//
// Data read through this interface is attacker-controlled. The host
// may return arbitrary bytes for any key, reorder history, or
// silently discard writes. Callers own verification; this interface
// only moves bytes.
//
// Implementations must be safe for concurrent use: many in-flight
// calls may hold a borrow of the same store.
type KeyValue interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Insert stores value under key, replacing any existing value.
	Insert(ctx context.Context, key, value []byte) error

	// Keys enumerates all keys currently present, in unspecified
	// order.
	Keys(ctx context.Context) ([][]byte, error)
}
