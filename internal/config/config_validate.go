// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package config

import (
	"fmt"
)

// Validate checks every section and returns the first error found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateData,
		c.validateFeatures,
		c.Probabilistic.Validate,
		c.Segmentation.Validate,
		c.Validation.Validate,
		c.validateRegistry,
		c.validatePipeline,
		c.validateServer,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

var validReaders = map[string]bool{
	"csv":    true,
	"duckdb": true,
}

var validWatermarkBackends = map[string]bool{
	"file":   true,
	"badger": true,
}

func (c *Config) validateData() error {
	if c.Data.RawPath == "" {
		return fmt.Errorf("data.raw_path is required")
	}
	if !validReaders[c.Data.Reader] {
		return fmt.Errorf("data.reader must be one of: csv, duckdb, got %q", c.Data.Reader)
	}
	if !validWatermarkBackends[c.Data.WatermarkBackend] {
		return fmt.Errorf("data.watermark_backend must be one of: file, badger, got %q", c.Data.WatermarkBackend)
	}
	if c.Data.WatermarkBackend == "file" && c.Data.WatermarkPath == "" {
		return fmt.Errorf("data.watermark_path is required for the file watermark backend")
	}
	if c.Data.WatermarkBackend == "badger" && c.Data.BadgerDir == "" {
		return fmt.Errorf("data.badger_dir is required for the badger watermark backend")
	}
	if c.Data.Database.Threads < 0 {
		return fmt.Errorf("data.database.threads must be >= 0, got %d", c.Data.Database.Threads)
	}
	return nil
}

func (c *Config) validateFeatures() error {
	if c.Features.HorizonDays <= 0 {
		return fmt.Errorf("features.horizon_days must be positive, got %d", c.Features.HorizonDays)
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.Dir == "" {
		return fmt.Errorf("registry.dir is required")
	}
	g := c.Registry.Guard
	if g.MaxAttempts < 1 {
		return fmt.Errorf("registry.guard.max_attempts must be >= 1, got %d", g.MaxAttempts)
	}
	if g.Timeout < 0 || g.Backoff < 0 || g.OpenTimeout < 0 {
		return fmt.Errorf("registry.guard durations must be >= 0")
	}
	if g.FailureThreshold == 0 {
		return fmt.Errorf("registry.guard.failure_threshold must be >= 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Interval < 0 {
		return fmt.Errorf("pipeline.interval must be >= 0, got %s", c.Pipeline.Interval)
	}
	return c.RunnerConfig().Validate()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("server.rate_limit_requests must be >= 0, got %d", c.Server.RateLimitRequests)
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	if c.Server.MaxBatchSize < 1 {
		return fmt.Errorf("server.max_batch_size must be >= 1, got %d", c.Server.MaxBatchSize)
	}
	if c.Server.PredictionCacheSize < 0 || c.Server.PredictionCacheTTL < 0 {
		return fmt.Errorf("server.prediction_cache_size and prediction_cache_ttl must be >= 0")
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
