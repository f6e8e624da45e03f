// Package provider supplies sync functions that fetch fresh data from an origin.
package provider

import (
	"context"
	"errors"

	"github.com/wjtools/tua-storage/internal/storage"
)

var (
	// ErrNotFound is returned when the origin has no data for a key.
	ErrNotFound = errors.New("origin has no data for key")
	// ErrInvalidResponse is returned when the origin response is not valid JSON.
	ErrInvalidResponse = errors.New("invalid origin response")
)

// Provider is the interface that each origin must implement.
//
// This is the thing that actually produces the data a stale key is refreshed with.
type Provider interface {
	// Fetch returns the current value for key scoped by params.
	Fetch(ctx context.Context, key string, params map[string]any) (any, error)
}

// Func adapts an ordinary function into a Provider.
type Func func(ctx context.Context, key string, params map[string]any) (any, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, key string, params map[string]any) (any, error) {
	return f(ctx, key, params)
}

// SyncFunc returns a storage.SyncFunc that fetches key from p.
func SyncFunc(p Provider, key string, params map[string]any) storage.SyncFunc {
	return storage.Async(func(ctx context.Context) (any, error) {
		return p.Fetch(ctx, key, params)
	})
}
