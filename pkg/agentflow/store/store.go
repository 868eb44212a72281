// Package store persists Session-scope variables of a flow context.
//
// Values are opaque byte slices grouped by namespace (one namespace per
// session). Three backends are provided: MemoryStore for tests and
// single-process use, SQLiteStore for embedded persistence, and RedisStore
// for sessions shared between processes.
package store

import (
	"context"
	"errors"
)

// Store persists session variables.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value of key in namespace, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// All returns every key in namespace. An unknown namespace yields an empty map.
	All(ctx context.Context, namespace string) (map[string][]byte, error)

	// Clear removes the whole namespace.
	Clear(ctx context.Context, namespace string) error

	// Close releases connections and files.
	Close() error
}

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("store: key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store: closed")
)
