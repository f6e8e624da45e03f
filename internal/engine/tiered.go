package engine

import (
	"context"
	"errors"
)

// Tiered combines a fast L1 engine with an authoritative L2 engine.
// Get checks L1 first, then L2 (backfilling L1 on an L2 hit).
// Writes go to L2 first so L1 never holds data L2 rejected. L1 is best effort.
type Tiered struct {
	l1 Engine
	l2 Engine
}

var _ Engine = (*Tiered)(nil)

// NewTiered creates a tiered engine with the given L1 and L2 engines.
func NewTiered(l1, l2 Engine) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := t.l1.Get(ctx, key)
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	payload, err = t.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	// L1 is best effort; L2 stays authoritative.
	_ = t.l1.Set(ctx, key, payload)
	return payload, nil
}

// Set writes to L2, then L1. Only an L2 failure is reported; when the L1
// write fails the key is dropped from L1 so it cannot serve the old payload.
func (t *Tiered) Set(ctx context.Context, key string, payload []byte) error {
	if err := t.l2.Set(ctx, key, payload); err != nil {
		return err
	}
	if err := t.l1.Set(ctx, key, payload); err != nil {
		_ = t.l1.Remove(ctx, key)
	}
	return nil
}

// Remove deletes from both levels.
func (t *Tiered) Remove(ctx context.Context, key string) error {
	if err := t.l1.Remove(ctx, key); err != nil {
		return err
	}
	return t.l2.Remove(ctx, key)
}

// Clear empties both levels.
func (t *Tiered) Clear(ctx context.Context) error {
	if err := t.l1.Clear(ctx); err != nil {
		return err
	}
	return t.l2.Clear(ctx)
}

// Keys lists the authoritative L2 keys.
func (t *Tiered) Keys(ctx context.Context) ([]string, error) {
	return t.l2.Keys(ctx)
}

// Close closes both levels and reports the first error.
func (t *Tiered) Close() error {
	return errors.Join(t.l1.Close(), t.l2.Close())
}
