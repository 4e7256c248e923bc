// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package untrusted

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cloister-foundation/cloister/lib/sqlitepool"
)

// compressionTag identifies how a stored value is encoded. Tags are
// persisted in the database — changing them breaks existing stores.
type compressionTag int64

const (
	compressionNone compressionTag = 0
	compressionZstd compressionTag = 1
)

// compressionThreshold is the minimum value size, in bytes, for which
// zstd compression is attempted. Below this, the zstd frame overhead
// usually exceeds the savings.
const compressionThreshold = 256

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("untrusted: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("untrusted: zstd decoder initialization failed: " + err.Error())
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key         BLOB PRIMARY KEY,
	compression INTEGER NOT NULL,
	raw_size    INTEGER NOT NULL,
	value       BLOB NOT NULL
) WITHOUT ROWID;
`

// SQLiteStore is the production KeyValue implementation: a
// single-table SQLite database on the host filesystem. Values above
// compressionThreshold are stored zstd-compressed when that makes
// them smaller.
//
// The database lives outside the trust boundary. The store performs
// no integrity checks beyond SQLite's own — callers are expected to
// verify anything that matters.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

var _ KeyValue = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if necessary) the untrusted store at
// path. The caller must call Close when done.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("untrusted: opening store: %w", err)
	}

	return &SQLiteStore{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

// Get returns the value stored under key, decompressing if needed.
func (s *SQLiteStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var (
		found   bool
		tag     compressionTag
		rawSize int64
		stored  []byte
	)
	err = sqlitex.Execute(conn, "SELECT compression, raw_size, value FROM kv WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			tag = compressionTag(stmt.ColumnInt64(0))
			rawSize = stmt.ColumnInt64(1)
			stored = make([]byte, stmt.ColumnLen(2))
			stmt.ColumnBytes(2, stored)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("untrusted: get: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	switch tag {
	case compressionNone:
		return stored, nil
	case compressionZstd:
		value, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("untrusted: decompressing value: %w", err)
		}
		if int64(len(value)) != rawSize {
			return nil, fmt.Errorf("untrusted: decompressed %d bytes, recorded size %d", len(value), rawSize)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("untrusted: unknown compression tag %d", tag)
	}
}

// Insert stores value under key, replacing any existing value.
func (s *SQLiteStore) Insert(ctx context.Context, key, value []byte) error {
	tag := compressionNone
	stored := value

	if len(value) >= compressionThreshold {
		compressed := zstdEncoder.EncodeAll(value, nil)
		if len(compressed) < len(value) {
			tag = compressionZstd
			stored = compressed
		}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO kv (key, compression, raw_size, value) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET compression=excluded.compression, raw_size=excluded.raw_size, value=excluded.value",
		&sqlitex.ExecOptions{
			Args: []any{key, int64(tag), int64(len(value)), stored},
		})
	if err != nil {
		return fmt.Errorf("untrusted: insert: %w", err)
	}
	return nil
}

// Keys enumerates all keys in unspecified order.
func (s *SQLiteStore) Keys(ctx context.Context) ([][]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var keys [][]byte
	err = sqlitex.Execute(conn, "SELECT key FROM kv", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, key)
			keys = append(keys, key)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("untrusted: keys: %w", err)
	}
	return keys, nil
}
