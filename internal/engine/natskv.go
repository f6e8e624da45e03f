package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV is an engine backed by a NATS JetStream KeyValue bucket.
//
// NATS restricts key characters, so keys are stored base64url-encoded.
type NATSKV struct {
	mu     sync.RWMutex
	nc     *nats.Conn
	kv     jetstream.KeyValue
	closed bool
}

var _ Engine = (*NATSKV)(nil)

// NewNATSKV wraps an existing KeyValue bucket. The engine does not own any
// connection, so Close only marks it closed.
func NewNATSKV(kv jetstream.KeyValue) *NATSKV {
	return &NATSKV{kv: kv}
}

// ConnectNATSKV connects to url and creates (or reuses) the named bucket.
// The returned engine owns the connection.
func ConnectNATSKV(ctx context.Context, url, bucket string) (*NATSKV, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}

	return &NATSKV{nc: nc, kv: kv}, nil
}

func encodeNATSKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeNATSKey(key string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Get retrieves a payload from the bucket.
func (n *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, ErrClosed
	}
	if key == "" {
		return nil, ErrNotFound
	}

	entry, err := n.kv.Get(ctx, encodeNATSKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

// Set stores a payload in the bucket.
func (n *NATSKV) Set(ctx context.Context, key string, payload []byte) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	_, err := n.kv.Put(ctx, encodeNATSKey(key), payload)
	return err
}

// Remove deletes a payload from the bucket.
func (n *NATSKV) Remove(ctx context.Context, key string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}
	if key == "" {
		return nil
	}

	err := n.kv.Delete(ctx, encodeNATSKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Clear purges every key in the bucket.
func (n *NATSKV) Clear(ctx context.Context) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}

	keys, err := n.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	for _, k := range keys {
		if err := n.kv.Purge(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("nats purge: %w", err)
		}
	}
	return nil
}

// Keys lists every live key in the bucket.
func (n *NATSKV) Keys(ctx context.Context) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, ErrClosed
	}

	encoded, err := n.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, err
	}

	keys := make([]string, 0, len(encoded))
	for _, k := range encoded {
		key, decodeErr := decodeNATSKey(k)
		if decodeErr != nil {
			// Not written by this engine.
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close closes the owned connection, if any.
func (n *NATSKV) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}
