package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent
var ErrNotFound = errors.New("key not found")

// KV is the durable key-value blob storage the app persists into.
// Every backend (bolt, SQLite, JSON files, Redis, Postgres, memory)
// implements this interface.
type KV interface {
	// Get returns the blob stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set atomically replaces the blob stored under key
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	Close() error
}

// Ensure backends implement the interface
var (
	_ KV = (*Memory)(nil)
	_ KV = (*FileStore)(nil)
	_ KV = (*BoltStore)(nil)
	_ KV = (*SQLiteStore)(nil)
	_ KV = (*RedisStore)(nil)
	_ KV = (*PostgresStore)(nil)
)
