package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wjtools/tua-storage/internal/engine"
	"github.com/wjtools/tua-storage/internal/provider"
	"github.com/wjtools/tua-storage/internal/storage"
	"github.com/wjtools/tua-storage/internal/version"
)

const (
	// defaultDBPath is the default path for the bbolt database.
	defaultDBPath = "./tua-storage.db"
	// dbFileMode is the file mode for the bbolt database file.
	dbFileMode = 0o600
	// dbLockTimeout bounds waiting for another process holding the database.
	dbLockTimeout = time.Second
	// exitSuccess is the exit code for success.
	exitSuccess = 0
	// exitInvalidArgs is the exit code for invalid arguments.
	exitInvalidArgs = 1
	// exitNotFound is the exit code for a key without fresh data.
	exitNotFound = 2
	// exitRuntimeError is the exit code for runtime error.
	exitRuntimeError = 3
)

// options are the flags shared by every command.
type options struct {
	expires storage.Expiry
	force   bool
	origin  provider.Provider
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		verbose     = flag.Bool("v", false, "Verbose output (debug mode)")
		showVersion = flag.Bool("version", false, "Show version and exit")
		dbPath      = flag.String("db", defaultDBPath, "Path to bbolt database file")
		expires     = flag.Duration("expires", 0, "Lifetime of written data (0 uses the 30s default)")
		never       = flag.Bool("never", false, "Written data never expires")
		force       = flag.Bool("force", false, "get: always refresh from the origin")
		originURL   = flag.String("origin", "", "get: origin base URL used to refresh stale keys")
		timeout     = flag.Duration("timeout", 30*time.Second, "Timeout for the operation")
	)

	// Customize usage message
	flag.CommandLine.Usage = printUsage

	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Fprintf(os.Stdout, "tuastorage version %s\n", version.Get())
		return exitSuccess
	}

	logger := setupLogger(*verbose)

	args := flag.Args()
	if len(args) == 0 {
		logger.Error("no command provided")
		printUsage()
		return exitInvalidArgs
	}
	if err := checkArgs(args[0], args[1:]); err != nil {
		logger.Error("invalid arguments", "error", err)
		printUsage()
		return exitInvalidArgs
	}

	opts := options{force: *force}
	switch {
	case *never:
		opts.expires = storage.NeverExpire()
	case *expires < 0:
		logger.Error("expires must not be negative", "expires", *expires)
		return exitInvalidArgs
	case *expires > 0:
		opts.expires = storage.ExpireIn(*expires)
	}
	if *originURL != "" {
		origin, err := provider.NewOrigin(provider.OriginOptions{BaseURL: *originURL, Timeout: *timeout})
		if err != nil {
			logger.Error("invalid origin", "error", err)
			return exitInvalidArgs
		}
		opts.origin = origin
	}

	// Setup signal handling for graceful cancellation
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling operation", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	db, err := bbolt.Open(*dbPath, dbFileMode, &bbolt.Options{Timeout: dbLockTimeout})
	if err != nil {
		logger.Error("failed to open database", "path", *dbPath, "error", err)
		return exitRuntimeError
	}
	eng, err := engine.NewBbolt(db)
	if err != nil {
		_ = db.Close()
		logger.Error("failed to initialize database", "error", err)
		return exitRuntimeError
	}
	defer eng.Close()
	logger.Debug("opened database", "path", *dbPath)

	store := storage.New(storage.Options{
		Engine:        eng,
		SweepInterval: -1,
		PurgeInterval: -1,
		Logger:        logger,
	})
	defer store.Close()

	if err := execute(ctx, store, args[0], args[1:], opts, os.Stdout); err != nil {
		if errors.Is(err, storage.ErrNoDataFound) || errors.Is(err, provider.ErrNotFound) {
			logger.Error("no data found", "error", err)
			return exitNotFound
		}
		logger.Error("command failed", "command", args[0], "error", err)
		return exitRuntimeError
	}

	return exitSuccess
}

// printUsage prints the usage message.
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <command> [arguments]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Read and write a local tua-storage database.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  get <key> [param=value...]          Print fresh data as JSON\n")
	fmt.Fprintf(os.Stderr, "  set <key> <json> [param=value...]   Store data (invalid JSON is stored as a string)\n")
	fmt.Fprintf(os.Stderr, "  rm <key> [param=value...]           Remove a key\n")
	fmt.Fprintf(os.Stderr, "  clear                               Remove every key\n")
	fmt.Fprintf(os.Stderr, "  keys                                List stored keys\n")
	fmt.Fprintf(os.Stderr, "  purge                               Delete expired records\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

// setupLogger sets up the logger based on the verbose flag.
func setupLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelError
	if verbose {
		// If verbose is true, set the log level to debug
		// This will log all messages, including debug messages
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// checkArgs validates the arguments of cmd before anything is opened.
func checkArgs(cmd string, args []string) error {
	switch cmd {
	case "get", "rm":
		if len(args) < 1 {
			return fmt.Errorf("%s requires a key", cmd)
		}
	case "set":
		if len(args) < 2 {
			return errors.New("set requires a key and a value")
		}
	case "clear", "keys", "purge":
		if len(args) != 0 {
			return fmt.Errorf("%s takes no arguments", cmd)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// execute runs cmd against store and writes results to out.
func execute(ctx context.Context, store *storage.Storage, cmd string, args []string, opts options, out io.Writer) error {
	switch cmd {
	case "get":
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		req := storage.LoadRequest{
			Key:     storage.BaseKey(args[0], params),
			Expires: opts.expires,
			Force:   opts.force,
		}
		if opts.origin != nil {
			req.Sync = provider.SyncFunc(opts.origin, args[0], params)
		}
		data, err := store.Load(ctx, req)
		if err != nil {
			return err
		}
		return json.NewEncoder(out).Encode(data)

	case "set":
		params, err := parseParams(args[2:])
		if err != nil {
			return err
		}
		return store.Save(ctx, storage.SaveRequest{
			Key:     storage.BaseKey(args[0], params),
			Data:    parseValue(args[1]),
			Expires: opts.expires,
		})

	case "rm":
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return store.Remove(ctx, storage.BaseKey(args[0], params))

	case "clear":
		return store.Clear(ctx)

	case "keys":
		keys, err := store.Keys(ctx)
		if err != nil {
			return err
		}
		slices.Sort(keys)
		for _, key := range keys {
			if _, err := fmt.Fprintln(out, key); err != nil {
				return err
			}
		}
		return nil

	case "purge":
		n, err := store.Purge(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "purged %d\n", n)
		return err

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseParams turns name=value arguments into sync params.
func parseParams(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid param %q: want name=value", arg)
		}
		params[name] = parseValue(value)
	}
	return params, nil
}

// parseValue decodes s as JSON, falling back to the plain string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
