// Package config provides hierarchical configuration loading for tuastoraged.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Engine kinds accepted by Storage.Engine.
const (
	EngineMemory    = "memory"
	EngineBbolt     = "bbolt"
	EngineSQLite    = "sqlite"
	EnginePostgres  = "postgres"
	EngineNATS      = "nats"
	EngineRistretto = "ristretto"
)

// Config holds all runtime configuration for the tuastoraged daemon.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Origin  Origin  `yaml:"origin"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Storage selects the engine and tunes the cache.
type Storage struct {
	Engine         string        `yaml:"engine"`          // memory | bbolt | sqlite | postgres | nats | ristretto
	Path           string        `yaml:"path"`            // bbolt database file
	DSN            string        `yaml:"dsn"`             // sqlite file or postgres URL
	NATSURL        string        `yaml:"nats_url"`        // nats engine server
	NATSBucket     string        `yaml:"nats_bucket"`     // nats engine KV bucket
	MaxCostMB      int64         `yaml:"max_cost_mb"`     // ristretto engine capacity
	L1MaxCostMB    int64         `yaml:"l1_max_cost_mb"`  // in-process L1 in front of the engine; 0 disables
	DefaultExpires time.Duration `yaml:"default_expires"` // lifetime when a request sets none
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // negative disables the sweeper
	PurgeInterval  time.Duration `yaml:"purge_interval"`  // engine purge of expired records; negative disables
	Parallelism    int           `yaml:"parallelism"`     // concurrent items per batch
}

// Origin configures the HTTP service used by sync loads.
type Origin struct {
	URL     string        `yaml:"url"` // empty disables sync loads
	Timeout time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Metrics configures OpenTelemetry metric export. Counters are always
// readable on GET /v1/stats.
type Metrics struct {
	OTLPEndpoint   string        `yaml:"otlp_endpoint"` // host:port of an OTLP gRPC collector; empty disables export
	OTLPInsecure   bool          `yaml:"otlp_insecure"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Engine:         EngineMemory,
			Path:           "./data/tua-storage.db",
			NATSURL:        "nats://localhost:4222",
			NATSBucket:     "tua-storage",
			MaxCostMB:      64,
			DefaultExpires: 30 * time.Second,
			SweepInterval:  time.Second,
			PurgeInterval:  time.Minute,
			Parallelism:    8,
		},
		Origin: Origin{
			Timeout: 30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "tuastoraged",
		},
		Metrics: Metrics{
			ExportInterval: 30 * time.Second,
		},
	}
}
