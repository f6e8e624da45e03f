package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tua-storage.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TUA_PORT")
	setDuration(&cfg.Server.ShutdownTimeout, "TUA_SHUTDOWN_TIMEOUT")

	// Storage
	setString(&cfg.Storage.Engine, "TUA_STORAGE_ENGINE")
	setString(&cfg.Storage.Path, "TUA_STORAGE_PATH")
	setString(&cfg.Storage.DSN, "TUA_STORAGE_DSN")
	setString(&cfg.Storage.NATSURL, "NATS_URL")
	setString(&cfg.Storage.NATSBucket, "TUA_NATS_BUCKET")
	setInt64(&cfg.Storage.MaxCostMB, "TUA_STORAGE_MAX_COST_MB")
	setInt64(&cfg.Storage.L1MaxCostMB, "TUA_STORAGE_L1_MAX_COST_MB")
	setDuration(&cfg.Storage.DefaultExpires, "TUA_DEFAULT_EXPIRES")
	setDuration(&cfg.Storage.SweepInterval, "TUA_SWEEP_INTERVAL")
	setDuration(&cfg.Storage.PurgeInterval, "TUA_PURGE_INTERVAL")
	setInt(&cfg.Storage.Parallelism, "TUA_PARALLELISM")

	// Origin
	setString(&cfg.Origin.URL, "TUA_ORIGIN_URL")
	setDuration(&cfg.Origin.Timeout, "TUA_ORIGIN_TIMEOUT")

	setString(&cfg.Logging.Level, "TUA_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TUA_LOG_SERVICE")

	setString(&cfg.Metrics.OTLPEndpoint, "TUA_OTLP_ENDPOINT")
	setBool(&cfg.Metrics.OTLPInsecure, "TUA_OTLP_INSECURE")
	setDuration(&cfg.Metrics.ExportInterval, "TUA_METRICS_EXPORT_INTERVAL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch cfg.Storage.Engine {
	case EngineMemory:
	case EngineBbolt:
		if cfg.Storage.Path == "" {
			return errors.New("storage.path is required for the bbolt engine")
		}
	case EngineSQLite, EnginePostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s engine", cfg.Storage.Engine)
		}
	case EngineNATS:
		if cfg.Storage.NATSURL == "" || cfg.Storage.NATSBucket == "" {
			return errors.New("storage.nats_url and storage.nats_bucket are required for the nats engine")
		}
	case EngineRistretto:
		if cfg.Storage.MaxCostMB < 1 {
			return errors.New("storage.max_cost_mb must be >= 1 for the ristretto engine")
		}
	default:
		return fmt.Errorf("unknown storage.engine %q", cfg.Storage.Engine)
	}

	if cfg.Storage.L1MaxCostMB < 0 {
		return errors.New("storage.l1_max_cost_mb must be >= 0")
	}
	if cfg.Storage.DefaultExpires <= 0 {
		return errors.New("storage.default_expires must be > 0")
	}
	if cfg.Storage.SweepInterval == 0 {
		return errors.New("storage.sweep_interval must be non-zero (negative disables sweeping)")
	}
	if cfg.Storage.PurgeInterval == 0 {
		return errors.New("storage.purge_interval must be non-zero (negative disables purging)")
	}
	if cfg.Storage.Parallelism < 1 {
		return errors.New("storage.parallelism must be >= 1")
	}

	if cfg.Origin.URL != "" {
		u, err := url.Parse(cfg.Origin.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("origin.url %q must be an http or https URL", cfg.Origin.URL)
		}
	}
	if cfg.Metrics.OTLPEndpoint != "" && cfg.Metrics.ExportInterval <= 0 {
		return errors.New("metrics.export_interval must be > 0 when metrics.otlp_endpoint is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
