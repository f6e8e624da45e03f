package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wjtools/tua-storage/internal/config"
	"github.com/wjtools/tua-storage/internal/logger"
	"github.com/wjtools/tua-storage/internal/metrics"
	"github.com/wjtools/tua-storage/internal/provider"
	"github.com/wjtools/tua-storage/internal/server"
	"github.com/wjtools/tua-storage/internal/storage"
	"github.com/wjtools/tua-storage/internal/version"
)

const (
	// readHeaderTimeout is the timeout for reading request headers.
	readHeaderTimeout = 10 * time.Second
	// readTimeout is the timeout for reading the entire request.
	readTimeout = 30 * time.Second
	// writeTimeout is the timeout for writing the response.
	writeTimeout = 60 * time.Second
	// connectTimeout bounds connecting to the storage engine.
	connectTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", config.DefaultConfigFile, "Path to YAML configuration file")
		verbose     = flag.Bool("v", false, "Verbose output (debug mode)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)

	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "tuastoraged version %s\n", version.Get())
		return 0
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		logger.New(config.Defaults().Logging).Error("failed to load configuration", "path", *configPath, "error", err)
		return 1
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	log := logger.New(cfg.Logging)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), connectTimeout)
	eng, err := openEngine(connectCtx, cfg.Storage, log)
	cancelConnect()
	if err != nil {
		log.Error("failed to open storage engine", "engine", cfg.Storage.Engine, "error", err)
		return 1
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			log.Error("failed to close storage engine", "error", closeErr)
		}
	}()
	log.Info("opened storage engine", "engine", cfg.Storage.Engine)

	meterProvider, err := metrics.NewProvider(context.Background(), metrics.ProviderOptions{
		Service:        cfg.Logging.Service,
		OTLPEndpoint:   cfg.Metrics.OTLPEndpoint,
		OTLPInsecure:   cfg.Metrics.OTLPInsecure,
		ExportInterval: cfg.Metrics.ExportInterval,
	})
	if err != nil {
		log.Error("failed to create meter provider", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelFlush()
		if shutdownErr := meterProvider.Shutdown(flushCtx); shutdownErr != nil {
			log.Error("failed to flush metrics", "error", shutdownErr)
		}
	}()
	if cfg.Metrics.OTLPEndpoint != "" {
		log.Info("exporting metrics", "otlp_endpoint", cfg.Metrics.OTLPEndpoint, "interval", cfg.Metrics.ExportInterval)
	}

	m, err := metrics.New(meterProvider.MeterProvider)
	if err != nil {
		log.Error("failed to create metrics", "error", err)
		return 1
	}

	store := storage.New(storage.Options{
		Engine:         eng,
		DefaultExpires: cfg.Storage.DefaultExpires,
		SweepInterval:  cfg.Storage.SweepInterval,
		PurgeInterval:  cfg.Storage.PurgeInterval,
		Parallelism:    cfg.Storage.Parallelism,
		Logger:         log.With("component", "storage"),
		Metrics:        m,
	})
	defer store.Close()

	var origin provider.Provider
	if cfg.Origin.URL != "" {
		o, originErr := provider.NewOrigin(provider.OriginOptions{
			BaseURL: cfg.Origin.URL,
			Timeout: cfg.Origin.Timeout,
		})
		if originErr != nil {
			log.Error("failed to create origin client", "error", originErr)
			return 1
		}
		origin = o
		log.Info("sync loads enabled", "origin", cfg.Origin.URL)
	}

	srv := server.NewServer(store, origin, meterProvider, log, version.Get())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case serverErr := <-serverErrors:
		if !errors.Is(serverErr, http.ErrServerClosed) {
			log.Error("server error", "error", serverErr)
			return 1
		}
		return 0
	case sig := <-shutdown:
		log.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("graceful shutdown failed", "error", shutdownErr)
			if closeErr := httpServer.Close(); closeErr != nil {
				log.Error("forced shutdown failed", "error", closeErr)
			}
			return 1
		}

		log.Info("server stopped gracefully")
		return 0
	}
}
