// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package untrusted

import (
	"context"
	"sync"
)

// MemStore is an in-process KeyValue backed by a map. Used by tests
// and by loopback runs where no host store is configured. It gives
// the same untrusted contract as SQLiteStore — code written against
// it must not start trusting the data just because the map happens
// to live in-process.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ KeyValue = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (s *MemStore) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Insert stores a copy of value under key.
func (s *MemStore) Insert(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[string(key)] = append([]byte(nil), value...)
	return nil
}

// Keys returns all keys in unspecified order.
func (s *MemStore) Keys(_ context.Context) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([][]byte, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, []byte(key))
	}
	return keys, nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
