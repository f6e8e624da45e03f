package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wjtools/tua-storage/internal/engine"
)

// TestRistretto_Compliance runs the compliance suite against Ristretto.
func TestRistretto_Compliance(t *testing.T) {
	t.Parallel()

	runComplianceTests(t, func(t *testing.T) engine.Engine {
		r, err := engine.NewRistretto(1 << 20)
		if err != nil {
			t.Fatalf("NewRistretto() error = %v", err)
		}
		t.Cleanup(func() { _ = r.Close() })
		return r
	})
}

// TestRistretto_KeysUnsupported tests that Ristretto reports key listing as unsupported.
func TestRistretto_KeysUnsupported(t *testing.T) {
	t.Parallel()

	r, err := engine.NewRistretto(1 << 20)
	if err != nil {
		t.Fatalf("NewRistretto() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	if _, err := r.Keys(context.Background()); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Keys() error = %v, want ErrUnsupported", err)
	}
}
