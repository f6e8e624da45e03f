package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/wjtools/tua-storage/internal/engine"
)

// TestBbolt_Interface tests that Bbolt implements the Engine interface.
func TestBbolt_Interface(t *testing.T) {
	t.Parallel()

	b, err := engine.NewBbolt(createTempBboltDB(t))
	if err != nil {
		t.Fatalf("NewBbolt() error = %v", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			t.Errorf("Close() error = %v", closeErr)
		}
	}()

	// Verify Bbolt implements Engine interface
	var _ engine.Engine = b
}

// TestBbolt_Compliance runs the compliance suite against Bbolt.
func TestBbolt_Compliance(t *testing.T) {
	t.Parallel()

	runComplianceTests(t, func(t *testing.T) engine.Engine {
		b, err := engine.NewBbolt(createTempBboltDB(t))
		if err != nil {
			t.Fatalf("NewBbolt() error = %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

// TestBbolt_EmptyValues tests the behavior of Bbolt with empty keys and payloads.
//
//nolint:tparallel // Subtests cannot be parallel as they share the same bbolt database instance
func TestBbolt_EmptyValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, err := engine.NewBbolt(createTempBboltDB(t))
	if err != nil {
		t.Fatalf("NewBbolt() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	t.Run("Empty payload", func(t *testing.T) {
		if setErr := b.Set(ctx, "empty-key", []byte{}); setErr != nil {
			t.Fatalf("Set() error = %v", setErr)
		}
		got, getErr := b.Get(ctx, "empty-key")
		if getErr != nil {
			t.Fatalf("Get() error = %v", getErr)
		}
		if len(got) != 0 {
			t.Errorf("Get() = %q, want empty payload", got)
		}
	})

	t.Run("Empty key", func(t *testing.T) {
		// bbolt rejects empty keys
		if setErr := b.Set(ctx, "", []byte("v")); !errors.Is(setErr, engine.ErrEmptyKey) {
			t.Errorf("Set() with empty key error = %v, want ErrEmptyKey", setErr)
		}
		if _, getErr := b.Get(ctx, ""); !errors.Is(getErr, engine.ErrNotFound) {
			t.Errorf("Get() with empty key error = %v, want ErrNotFound", getErr)
		}
		if rmErr := b.Remove(ctx, ""); rmErr != nil {
			t.Errorf("Remove() with empty key error = %v, want nil", rmErr)
		}
	})
}

// TestBbolt_Persistence tests that payloads survive reopening the database file.
func TestBbolt_Persistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test-persist.db")

	// First engine instance
	db1, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() error = %v", err)
	}
	b1, err := engine.NewBbolt(db1)
	if err != nil {
		t.Fatalf("NewBbolt() error = %v", err)
	}
	if setErr := b1.Set(ctx, "persist-key", []byte("persist-value")); setErr != nil {
		t.Fatalf("Set() error = %v", setErr)
	}
	if closeErr := b1.Close(); closeErr != nil {
		t.Fatalf("Close() error = %v", closeErr)
	}

	// Second engine instance on the same file
	db2, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() second time error = %v", err)
	}
	b2, err := engine.NewBbolt(db2)
	if err != nil {
		t.Fatalf("NewBbolt() second time error = %v", err)
	}
	defer func() {
		if closeErr := b2.Close(); closeErr != nil {
			t.Errorf("Close() error = %v", closeErr)
		}
	}()

	got, err := b2.Get(ctx, "persist-key")
	if err != nil {
		t.Fatalf("Get() from second instance error = %v", err)
	}
	if string(got) != "persist-value" {
		t.Errorf("Get() from second instance = %s, want persist-value", got)
	}
}

// TestBbolt_ClearThenWrite tests that the bucket is usable after Clear.
func TestBbolt_ClearThenWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, err := engine.NewBbolt(createTempBboltDB(t))
	if err != nil {
		t.Fatalf("NewBbolt() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if setErr := b.Set(ctx, "a", []byte("1")); setErr != nil {
		t.Fatalf("Set() error = %v", setErr)
	}
	if clearErr := b.Clear(ctx); clearErr != nil {
		t.Fatalf("Clear() error = %v", clearErr)
	}
	if setErr := b.Set(ctx, "b", []byte("2")); setErr != nil {
		t.Fatalf("Set() after Clear() error = %v", setErr)
	}

	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("Keys() = %v, want [b]", keys)
	}
}

// createTempBboltDB creates a temporary bbolt database for testing.
func createTempBboltDB(t *testing.T) *bbolt.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() error = %v", err)
	}

	// Clean up on test completion
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			// Only log, don't fail, as test may have already closed it
			t.Logf("Cleanup: db.Close() error = %v", closeErr)
		}
		if removeErr := os.Remove(dbPath); removeErr != nil && !os.IsNotExist(removeErr) {
			t.Logf("Cleanup: os.Remove() error = %v", removeErr)
		}
	})

	return db
}
