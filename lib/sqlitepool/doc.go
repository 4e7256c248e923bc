// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides Cloister's standard SQLite connection
// pool. The untrusted local store is its only production consumer,
// but the pool carries no storage semantics of its own — it is the
// shared foundation for any component that needs local structured
// state on the host.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode, NORMAL synchronous for process-crash durability
// without fsync-per-commit overhead, memory-mapped I/O for read
// performance, and a busy timeout to absorb write contention.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for
// the duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: concurrent readers, single writer. Reads
//     never block writes and vice versa.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across power failure — acceptable because everything
//     the runtime keeps here is untrusted and advisory; the source
//     of truth is consensus state, never the host store.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock
//     instead of returning SQLITE_BUSY immediately.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/cloister/untrusted/kv.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// This package is intentionally thin: it applies standard pragmas
// and exposes the underlying zombiezen types directly. Consumers
// write SQL and use sqlitex.Execute for cached statements. There is
// no query builder and no abstraction over SQLite's connection model.
package sqlitepool
