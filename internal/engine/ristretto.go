package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto is a bounded in-process engine backed by dgraph-io/ristretto.
//
// Ristretto admits and evicts by cost, so a Set may be dropped and an entry
// may disappear at any time. That is acceptable for a cache tier but it means
// the engine cannot enumerate its keys.
type Ristretto struct {
	mu     sync.RWMutex
	c      *ristretto.Cache[string, []byte]
	closed bool
}

var _ Engine = (*Ristretto)(nil)

// NewRistretto creates a ristretto-backed engine. maxCostBytes is the maximum
// total size of stored payloads in bytes.
func NewRistretto(maxCostBytes int64) (*Ristretto, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c}, nil
}

// Get retrieves a payload from the cache.
func (r *Ristretto) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	payload, found := r.c.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	return cloneBytes(payload), nil
}

// Set stores a payload. Admission is decided by ristretto; Wait makes an
// admitted write visible to the next Get.
func (r *Ristretto) Set(_ context.Context, key string, payload []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	r.c.Set(key, cloneBytes(payload), int64(len(payload))+1)
	r.c.Wait()
	return nil
}

// Remove deletes a payload.
func (r *Ristretto) Remove(_ context.Context, key string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	r.c.Del(key)
	return nil
}

// Clear drops every payload.
func (r *Ristretto) Clear(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	r.c.Clear()
	return nil
}

// Keys is not supported by ristretto.
func (r *Ristretto) Keys(_ context.Context) ([]string, error) {
	return nil, errors.ErrUnsupported
}

// Close shuts down the cache and releases resources.
func (r *Ristretto) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	r.c.Close()
	return nil
}
