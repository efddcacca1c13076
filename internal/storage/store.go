// Package storage provides the durable keyed stores that back session mirrors
// and the session registry.
//
// Every backend stores opaque byte values under string keys and overwrites on
// Put. Callers own serialization; the stores never inspect values.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tablesync/internal/config"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key/value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Path)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
