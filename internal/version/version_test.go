package version_test

import (
	"testing"

	"github.com/wjtools/tua-storage/internal/version"
)

// TestGet tests the default build version.
func TestGet(t *testing.T) {
	t.Parallel()

	if got := version.Get(); got != "dev" {
		t.Errorf("Get() = %q, want %q", got, "dev")
	}
	if got := version.UserAgent(); got != "tua-storage/dev" {
		t.Errorf("UserAgent() = %q, want %q", got, "tua-storage/dev")
	}
}
