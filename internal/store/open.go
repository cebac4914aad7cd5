package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a backend
type Options struct {
	Backend     string
	DataDir     string
	RedisAddr   string
	DatabaseURL string
}

// Open creates the configured backend
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case "", BackendBolt:
		return NewBolt(opts.DataDir)
	case BackendSQLite:
		return NewSQLite(opts.DataDir)
	case BackendFile:
		return NewFileStore(opts.DataDir)
	case BackendRedis:
		return NewRedis(ctx, opts.RedisAddr)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		return NewPostgres(ctx, opts.DatabaseURL)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
