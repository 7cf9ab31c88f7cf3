// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package config

import (
	"time"

	"github.com/tomtom215/lodestar/internal/api"
	"github.com/tomtom215/lodestar/internal/database"
	"github.com/tomtom215/lodestar/internal/ingest"
	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/pipeline"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment"
	"github.com/tomtom215/lodestar/internal/validation"
)

// Config holds the complete application configuration.
type Config struct {
	Data          DataConfig             `koanf:"data"`
	Features      FeaturesConfig         `koanf:"features"`
	Probabilistic probabilistic.Config   `koanf:"probabilistic"`
	Segmentation  segment.Config         `koanf:"segmentation"`
	Validation    validation.SuiteConfig `koanf:"validation"`
	Registry      RegistryConfig         `koanf:"registry"`
	Pipeline      PipelineConfig         `koanf:"pipeline"`
	Server        ServerConfig           `koanf:"server"`
	Logging       LoggingConfig          `koanf:"logging"`
	Seeds         SeedsConfig            `koanf:"seeds"`
}

// DataConfig locates the raw log, the watermark and the feature table.
type DataConfig struct {
	// RawPath is the raw transaction CSV.
	RawPath string `koanf:"raw_path"`

	// Reader selects the CSV reader: csv or duckdb.
	Reader string `koanf:"reader"`

	// WatermarkBackend selects the watermark store: file or badger.
	WatermarkBackend string `koanf:"watermark_backend"`
	WatermarkPath    string `koanf:"watermark_path"`
	BadgerDir        string `koanf:"badger_dir"`

	// ProcessedPath receives the CSV export of the feature table after each run.
	ProcessedPath string `koanf:"processed_path"`

	Database database.Config `koanf:"database"`
}

// FeaturesConfig configures the feature builder.
type FeaturesConfig struct {
	HorizonDays int `koanf:"horizon_days"`
}

// RegistryConfig configures the model registry.
type RegistryConfig struct {
	Dir   string               `koanf:"dir"`
	Guard registry.GuardConfig `koanf:"guard"`
}

// PipelineConfig configures scheduled runs.
type PipelineConfig struct {
	// Interval between scheduled runs. Zero disables the schedule.
	Interval          time.Duration `koanf:"interval"`
	RunOnStartup      bool          `koanf:"run_on_startup"`
	Force             bool          `koanf:"force"`
	Timeout           time.Duration `koanf:"timeout"`
	KeepModelVersions int           `koanf:"keep_model_versions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	MaxBatchSize      int           `koanf:"max_batch_size"`

	PredictionCacheSize int           `koanf:"prediction_cache_size"`
	PredictionCacheTTL  time.Duration `koanf:"prediction_cache_ttl"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SeedsConfig holds random seeds not owned by a component section.
type SeedsConfig struct {
	Synthetic int64 `koanf:"synthetic"`
}

// RunnerConfig returns the pipeline runner settings.
func (c *Config) RunnerConfig() pipeline.Config {
	return pipeline.Config{
		HorizonDays:       c.Features.HorizonDays,
		Force:             c.Pipeline.Force,
		Timeout:           c.Pipeline.Timeout,
		ExportPath:        c.Data.ProcessedPath,
		KeepModelVersions: c.Pipeline.KeepModelVersions,
	}
}

// LoggingSettings returns the logging package configuration.
func (c *Config) LoggingSettings() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	lc.Caller = c.Logging.Caller
	return lc
}

// SyntheticConfig returns the generator settings with the configured seed.
func (c *Config) SyntheticConfig() ingest.SyntheticConfig {
	sc := ingest.DefaultSyntheticConfig()
	sc.Seed = c.Seeds.Synthetic
	return sc
}

// APIConfig returns the HTTP API limits.
func (c *Config) APIConfig() api.Config {
	return api.Config{
		RateLimitRequests: c.Server.RateLimitRequests,
		RateLimitWindow:   c.Server.RateLimitWindow,
		MaxBatchSize:      c.Server.MaxBatchSize,
		CacheSize:         c.Server.PredictionCacheSize,
		CacheTTL:          c.Server.PredictionCacheTTL,
	}
}
