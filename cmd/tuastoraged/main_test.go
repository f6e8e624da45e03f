package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/wjtools/tua-storage/internal/config"
	"github.com/wjtools/tua-storage/internal/engine"
)

// testLogger returns a logger that discards output for testing.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureStdout runs fn with os.Stdout redirected and returns what was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = oldStdout
	return <-done
}

// resetFlags installs a fresh flag set and os.Args for one run().
func resetFlags(t *testing.T, args ...string) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})

	flag.CommandLine = flag.NewFlagSet("tuastoraged", flag.ExitOnError)
	os.Args = append([]string{"tuastoraged"}, args...)
}

// TestOpenEngine tests engine selection from configuration.
func TestOpenEngine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.Storage
		wantErr bool
	}{
		{name: "memory", cfg: config.Storage{Engine: config.EngineMemory}},
		{name: "bbolt", cfg: config.Storage{Engine: config.EngineBbolt, Path: filepath.Join(dir, "nested", "cache.db")}},
		{name: "sqlite", cfg: config.Storage{Engine: config.EngineSQLite, DSN: filepath.Join(dir, "cache.sqlite")}},
		{name: "ristretto", cfg: config.Storage{Engine: config.EngineRistretto, MaxCostMB: 1}},
		{name: "memory behind l1", cfg: config.Storage{Engine: config.EngineMemory, L1MaxCostMB: 1}},
		{name: "unknown", cfg: config.Storage{Engine: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng, err := openEngine(context.Background(), tt.cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("openEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			t.Cleanup(func() { _ = eng.Close() })

			ctx := context.Background()
			if err := eng.Set(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := eng.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != "v" {
				t.Errorf("Get() = %q, want v", got)
			}
		})
	}
}

// TestOpenEngine_Tiered tests that an L1 capacity wraps the engine.
func TestOpenEngine_Tiered(t *testing.T) {
	t.Parallel()

	eng, err := openEngine(context.Background(), config.Storage{Engine: config.EngineMemory, L1MaxCostMB: 1}, testLogger())
	if err != nil {
		t.Fatalf("openEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	if _, ok := eng.(*engine.Tiered); !ok {
		t.Errorf("openEngine() = %T, want *engine.Tiered", eng)
	}
	// Keys come from the memory engine behind the L1.
	if _, err := eng.Keys(context.Background()); errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Keys() error = %v, want listing from L2", err)
	}
}

// TestRun_Version tests the run function with the --version flag.
func TestRun_Version(t *testing.T) {
	// Note: Cannot use t.Parallel() because run() modifies global flag.CommandLine
	resetFlags(t, "--version")

	var exitCode int
	output := captureStdout(t, func() { exitCode = run() })

	if exitCode != 0 {
		t.Errorf("run() with --version returned exit code %d, want 0", exitCode)
	}
	if !strings.Contains(output, "tuastoraged version dev") {
		t.Errorf("run() --version output = %q, want to contain 'tuastoraged version dev'", output)
	}
}

// TestRun_InvalidConfig tests that a bad configuration fails fast.
func TestRun_InvalidConfig(t *testing.T) {
	// Note: Cannot use t.Parallel() because run() modifies global state
	t.Setenv("TUA_STORAGE_ENGINE", "bogus")
	resetFlags(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))

	var exitCode int
	output := captureStdout(t, func() { exitCode = run() })

	if exitCode != 1 {
		t.Errorf("run() with invalid config returned exit code %d, want 1", exitCode)
	}
	if !strings.Contains(output, "failed to load configuration") {
		t.Errorf("run() should log configuration failure, got: %s", output)
	}
}

// TestRun_BboltOpenFailure tests when the bbolt database cannot be created.
func TestRun_BboltOpenFailure(t *testing.T) {
	// Note: Cannot use t.Parallel() because run() modifies global state

	// A regular file where a directory is expected makes the path unusable.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	t.Setenv("TUA_STORAGE_ENGINE", "bbolt")
	t.Setenv("TUA_STORAGE_PATH", filepath.Join(blocker, "sub", "cache.db"))
	resetFlags(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))

	var exitCode int
	output := captureStdout(t, func() { exitCode = run() })

	if exitCode != 1 {
		t.Errorf("run() with invalid cache path returned exit code %d, want 1", exitCode)
	}
	if !strings.Contains(output, "failed to open storage engine") {
		t.Errorf("run() should log engine open failure, got: %s", output)
	}
}

// TestRun_GracefulShutdown tests graceful shutdown on SIGINT and SIGTERM.
func TestRun_GracefulShutdown(t *testing.T) {
	// Note: Cannot use t.Parallel() because run() modifies global state

	for i, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(sig.String(), func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("TUA_STORAGE_ENGINE", "bbolt")
			t.Setenv("TUA_STORAGE_PATH", filepath.Join(dir, "cache.db"))
			t.Setenv("TUA_PORT", []string{"9105", "9106"}[i])
			resetFlags(t, "-config", filepath.Join(dir, "missing.yaml"), "-v")

			go func() {
				time.Sleep(200 * time.Millisecond)
				_ = syscall.Kill(syscall.Getpid(), sig)
			}()

			var exitCode int
			output := captureStdout(t, func() { exitCode = run() })

			if exitCode != 0 {
				t.Errorf("run() after %s returned exit code %d, want 0 (graceful shutdown)", sig, exitCode)
			}
			if !strings.Contains(output, "server stopped gracefully") {
				t.Errorf("run() should log graceful shutdown, got: %s", output)
			}
			if !strings.Contains(output, "opened storage engine") {
				t.Errorf("run() should log startup, got: %s", output)
			}
		})
	}
}
