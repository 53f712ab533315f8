// Package state defines the durable-storage contract shared by the export
// store and the transaction-log archive: a small key/value interface any
// backend (gzip file, in-memory) can satisfy.
package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a PersistenceBackend when a key has no value —
// including when the underlying storage is corrupt or truncated, which a
// backend should treat the same as absent rather than surfacing as a
// distinct error (see infrastructure/persistence.GzipFileBackend).
var ErrNotFound = errors.New("key not found")

// PersistenceBackend is the storage contract internal/exportstore and
// internal/txlog depend on. infrastructure/persistence.GzipFileBackend is
// the production implementation; tests may substitute any other
// implementation of this interface.
type PersistenceBackend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close(ctx context.Context) error
}
