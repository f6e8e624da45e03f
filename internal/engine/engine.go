// Package engine provides the pluggable persistent stores that back the
// storage layer. Engines are dumb: they map a string key to an opaque byte
// payload and know nothing about expiration.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key is not present in the engine.
	// Check it with errors.Is().
	ErrNotFound = errors.New("engine: key not found")
	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("engine: closed")
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("engine: empty key")
)

// Engine is the interface that each storage engine must implement.
type Engine interface {
	// Get retrieves the payload stored under key.
	// Returns ErrNotFound if the key is not present.
	// Returns ErrClosed if the engine has been closed.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores payload under key, replacing any previous payload.
	// Returns ErrClosed if the engine has been closed.
	Set(ctx context.Context, key string, payload []byte) error

	// Remove deletes the payload stored under key.
	// This operation is idempotent - removing a non-existent key is not an error.
	// Returns ErrClosed if the engine has been closed.
	Remove(ctx context.Context, key string) error

	// Clear removes every key from the engine.
	// Returns ErrClosed if the engine has been closed.
	Clear(ctx context.Context) error

	// Keys returns every key currently stored, in no particular order.
	// Engines that cannot enumerate their contents return errors.ErrUnsupported.
	Keys(ctx context.Context) ([]string, error)

	// Close releases any resources held by the engine.
	// This method is idempotent - calling Close multiple times is safe.
	// After Close is called, all other operations return ErrClosed.
	Close() error
}

// cloneBytes copies b so callers can never alias engine-owned memory.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
