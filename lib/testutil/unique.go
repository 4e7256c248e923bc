// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need unique identifiers for method names, storage keys,
// or session labels that must be distinguishable across subtests.
//
//	key := testutil.UniqueID("key")       // "key-1", "key-2", ...
//	method := testutil.UniqueID("method") // "method-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
