package engine_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/wjtools/tua-storage/internal/engine"
)

// runComplianceTests runs the standard compliance suite against any Engine.
// newEngine must return a fresh, empty engine on every call.
func runComplianceTests(t *testing.T, newEngine func(t *testing.T) engine.Engine) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Set(ctx, "compliance-key", []byte("compliance-val")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := e.Get(ctx, "compliance-key")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "compliance-val" {
			t.Errorf("Get() = %s, want compliance-val", got)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Get(ctx, "nonexistent-key")
		if !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Set(ctx, "ow-key", []byte("v1")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := e.Set(ctx, "ow-key", []byte("v2")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := e.Get(ctx, "ow-key")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "v2" {
			t.Errorf("Get() = %s, want v2", got)
		}
	})

	t.Run("KeyWithSpecialCharacters", func(t *testing.T) {
		e := newEngine(t)
		key := `user?{"a":1,"b":"2"}`
		if err := e.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := e.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "x" {
			t.Errorf("Get() = %s, want x", got)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Set(ctx, "del-key", []byte("del-val")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := e.Remove(ctx, "del-key"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := e.Get(ctx, "del-key"); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Get() after Remove() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("RemoveNonexistent", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Remove(ctx, "never-existed"); err != nil {
			t.Errorf("Remove() error = %v, want nil", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		e := newEngine(t)
		for _, k := range []string{"c1", "c2", "c3"} {
			if err := e.Set(ctx, k, []byte(k)); err != nil {
				t.Fatalf("Set(%s) error = %v", k, err)
			}
		}
		if err := e.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		for _, k := range []string{"c1", "c2", "c3"} {
			if _, err := e.Get(ctx, k); !errors.Is(err, engine.ErrNotFound) {
				t.Errorf("Get(%s) after Clear() error = %v, want ErrNotFound", k, err)
			}
		}
	})

	t.Run("Keys", func(t *testing.T) {
		e := newEngine(t)
		for _, k := range []string{"k2", "k1", "k3"} {
			if err := e.Set(ctx, k, []byte(k)); err != nil {
				t.Fatalf("Set(%s) error = %v", k, err)
			}
		}
		keys, err := e.Keys(ctx)
		if errors.Is(err, errors.ErrUnsupported) {
			t.Skip("engine cannot enumerate keys")
		}
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		slices.Sort(keys)
		if want := []string{"k1", "k2", "k3"}; !slices.Equal(keys, want) {
			t.Errorf("Keys() = %v, want %v", keys, want)
		}
	})

	t.Run("Close", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := e.Close(); err != nil {
			t.Errorf("second Close() error = %v, want nil", err)
		}
		if _, err := e.Get(ctx, "k"); !errors.Is(err, engine.ErrClosed) {
			t.Errorf("Get() after Close() error = %v, want ErrClosed", err)
		}
		if err := e.Set(ctx, "k", []byte("v")); !errors.Is(err, engine.ErrClosed) {
			t.Errorf("Set() after Close() error = %v, want ErrClosed", err)
		}
	})
}
