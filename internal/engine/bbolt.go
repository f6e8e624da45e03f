package engine

import (
	"context"
	"errors"
	"sync"

	"go.etcd.io/bbolt"
)

const (
	// bucketName is the name of the bbolt bucket holding every record.
	bucketName = "tua-storage"
)

// errBucketNotFound is returned when the bucket vanished underneath us.
var errBucketNotFound = errors.New("engine: bbolt bucket not found")

// Bbolt is an engine that persists payloads in a bbolt (embedded key-value store) file.
type Bbolt struct {
	db     *bbolt.DB
	mu     sync.RWMutex
	closed bool
}

var _ Engine = (*Bbolt)(nil)

// NewBbolt creates a new Bbolt engine on top of an open database.
// The engine takes ownership of db and closes it on Close.
func NewBbolt(db *bbolt.DB) (*Bbolt, error) {
	// Create bucket if it doesn't exist
	err := db.Update(func(tx *bbolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists([]byte(bucketName))
		return createErr
	})
	if err != nil {
		return nil, err
	}

	return &Bbolt{
		db: db,
	}, nil
}

// Get retrieves a payload from the bucket.
// Returns ErrNotFound if the key is not present.
func (b *Bbolt) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if key == "" {
		return nil, ErrNotFound
	}

	var payload []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return errBucketNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid for the lifetime of the transaction.
		payload = cloneBytes(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Set stores a payload in the bucket.
func (b *Bbolt) Set(_ context.Context, key string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return errBucketNotFound
		}
		return bucket.Put([]byte(key), payload)
	})
}

// Remove deletes a payload from the bucket.
// This operation is idempotent - removing a non-existent key is not an error.
func (b *Bbolt) Remove(_ context.Context, key string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	if key == "" {
		return nil
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil // Idempotent: if bucket doesn't exist, nothing to delete
		}
		return bucket.Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket in a single transaction.
func (b *Bbolt) Clear(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) != nil {
			if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Keys returns every key in the bucket.
func (b *Bbolt) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the engine and the underlying database.
// This method is idempotent - calling Close multiple times is safe.
func (b *Bbolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil // Already closed, idempotent
	}

	b.closed = true
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
