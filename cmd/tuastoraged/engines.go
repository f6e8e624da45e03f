package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wjtools/tua-storage/internal/config"
	"github.com/wjtools/tua-storage/internal/engine"
)

const (
	// dbFileMode is the file mode for the bbolt database file.
	dbFileMode = 0o600
	// dbDirMode is the mode for directories created for the bbolt file.
	dbDirMode = 0o750
	// dbLockTimeout bounds waiting for another process holding the bbolt file.
	dbLockTimeout = time.Second
	// megabyte converts the configured capacities to bytes.
	megabyte = 1 << 20
)

// openEngine opens the configured engine, fronted by an in-process L1 when
// l1_max_cost_mb is set.
func openEngine(ctx context.Context, cfg config.Storage, log *slog.Logger) (engine.Engine, error) {
	base, err := openBaseEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.L1MaxCostMB <= 0 {
		return base, nil
	}

	l1, err := engine.NewRistretto(cfg.L1MaxCostMB * megabyte)
	if err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("open l1: %w", err)
	}
	log.Info("in-process L1 enabled", "max_cost_mb", cfg.L1MaxCostMB)
	return engine.NewTiered(l1, base), nil
}

func openBaseEngine(ctx context.Context, cfg config.Storage) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineMemory:
		return engine.NewMemory(), nil

	case config.EngineBbolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dbDirMode); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", cfg.Path, err)
		}
		db, err := bbolt.Open(cfg.Path, dbFileMode, &bbolt.Options{Timeout: dbLockTimeout})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
		}
		eng, err := engine.NewBbolt(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return eng, nil

	case config.EngineSQLite:
		eng, err := engine.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return eng, nil

	case config.EnginePostgres:
		eng, err := engine.ConnectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return eng, nil

	case config.EngineNATS:
		eng, err := engine.ConnectNATSKV(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return nil, err
		}
		return eng, nil

	case config.EngineRistretto:
		eng, err := engine.NewRistretto(cfg.MaxCostMB * megabyte)
		if err != nil {
			return nil, err
		}
		return eng, nil

	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
