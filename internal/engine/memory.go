package engine

import (
	"context"
	"sync"
)

// Memory is an engine that keeps payloads in an in-process map.
// It is the default engine and provides no persistence.
type Memory struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

var _ Engine = (*Memory)(nil)

// NewMemory creates a new Memory engine.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]byte),
	}
}

// Get retrieves a payload from the map.
// Returns ErrNotFound if the key is not present.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	payload, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(payload), nil
}

// Set stores a payload in the map.
func (m *Memory) Set(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.items[key] = cloneBytes(payload)
	return nil
}

// Remove deletes a payload from the map.
// This operation is idempotent - removing a non-existent key is not an error.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.items, key)
	return nil
}

// Clear removes every payload from the map.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.items = make(map[string][]byte)
	return nil
}

// Keys returns the keys currently held in the map.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close releases the map.
// This method is idempotent - calling Close multiple times is safe.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Already closed, idempotent
	}

	m.closed = true
	m.items = nil
	return nil
}
