// Package storage persists small keyed records on the device. The session
// store keeps exactly one record here under a well-known key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("storage: key not found")

type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns the backend for driver. dsn is a directory for file, a
// database path for sqlite, a redis:// URL for redis and a connection URL for
// postgres. memory ignores dsn.
func Open(driver, dsn string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverFile, "":
		return NewFileBackend(dsn)
	case DriverSQLite:
		return NewSQLiteBackend(dsn)
	case DriverRedis:
		return NewRedisBackendFromURL(dsn)
	case DriverPostgres:
		return NewPostgresBackend(dsn)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
