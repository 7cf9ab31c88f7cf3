// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/lodestar/internal/database"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment"
	"github.com/tomtom215/lodestar/internal/validation"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/lodestar/config.yaml",
	"/etc/lodestar/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration.
func Default() *Config {
	db := database.DefaultConfig()
	db.Path = "data/lodestar.duckdb"

	return &Config{
		Data: DataConfig{
			RawPath:          "data/raw/transactions.csv",
			Reader:           "csv",
			WatermarkBackend: "file",
			WatermarkPath:    "data/watermark.txt",
			BadgerDir:        "data/watermark",
			ProcessedPath:    "data/processed/customer_features.csv",
			Database:         db,
		},
		Features:      FeaturesConfig{HorizonDays: 90},
		Probabilistic: probabilistic.DefaultConfig(),
		Segmentation:  segment.DefaultConfig(),
		Validation:    validation.DefaultSuiteConfig(),
		Registry: RegistryConfig{
			Dir:   "data/models",
			Guard: registry.DefaultGuardConfig(),
		},
		Pipeline: PipelineConfig{
			Interval:          24 * time.Hour,
			RunOnStartup:      true,
			Timeout:           time.Hour,
			KeepModelVersions: 10,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			MaxBatchSize:      1000,

			PredictionCacheSize: 10000,
			PredictionCacheTTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Seeds: SeedsConfig{Synthetic: 42},
	}
}

// Load loads configuration from defaults, the config file (if any) and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lower case) to koanf paths.
var envMappings = map[string]string{
	// Data
	"lodestar_raw_data_path":      "data.raw_path",
	"lodestar_reader":             "data.reader",
	"lodestar_watermark_backend":  "data.watermark_backend",
	"lodestar_watermark_path":     "data.watermark_path",
	"lodestar_badger_dir":         "data.badger_dir",
	"lodestar_processed_path":     "data.processed_path",
	"lodestar_duckdb_path":        "data.database.path",
	"lodestar_duckdb_threads":     "data.database.threads",
	"lodestar_duckdb_max_memory":  "data.database.max_memory",
	"lodestar_feature_horizon":    "features.horizon_days",
	"lodestar_clv_horizon":        "probabilistic.horizon_days",
	"lodestar_penalizer":          "probabilistic.penalizer",
	"lodestar_fit_max_iterations": "probabilistic.max_iterations",

	// Segmentation
	"lodestar_k_min":                "segmentation.k_min",
	"lodestar_k_max":                "segmentation.k_max",
	"lodestar_segmentation_workers": "segmentation.workers",
	"lodestar_segmentation_seed":    "segmentation.seed",

	// Validation
	"lodestar_quantity_max":     "validation.quantity_max",
	"lodestar_unit_price_max":   "validation.unit_price_max",
	"lodestar_amount_tolerance": "validation.amount_tolerance",

	// Registry
	"lodestar_registry_dir":          "registry.dir",
	"lodestar_registry_timeout":      "registry.guard.timeout",
	"lodestar_registry_max_attempts": "registry.guard.max_attempts",

	// Pipeline
	"lodestar_pipeline_interval":       "pipeline.interval",
	"lodestar_pipeline_run_on_startup": "pipeline.run_on_startup",
	"lodestar_pipeline_force":          "pipeline.force",
	"lodestar_pipeline_timeout":        "pipeline.timeout",
	"lodestar_keep_model_versions":     "pipeline.keep_model_versions",

	// Server
	"lodestar_http_host":           "server.host",
	"lodestar_http_port":           "server.port",
	"lodestar_rate_limit_requests": "server.rate_limit_requests",
	"lodestar_rate_limit_window":   "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Seeds
	"lodestar_synthetic_seed": "seeds.synthetic",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
