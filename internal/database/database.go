// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

const defaultQueryTimeout = 30 * time.Second

// Config holds DuckDB settings.
type Config struct {
	// Path is the database file. Empty means an in-memory database.
	Path      string `koanf:"path"`
	Threads   int    `koanf:"threads"`
	MaxMemory string `koanf:"max_memory"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{MaxMemory: "1GB"}
}

const createFeatureTable = `
	CREATE TABLE IF NOT EXISTS customer_features (
		"CustomerID"              VARCHAR NOT NULL,
		"Recency"                 INTEGER NOT NULL,
		"Frequency"               INTEGER NOT NULL,
		"MonetaryValue"           DOUBLE NOT NULL,
		"CustomerTenure"          INTEGER NOT NULL,
		"AvgOrderValue"           DOUBLE NOT NULL,
		"SpendingVolatility"      DOUBLE NOT NULL,
		"UniqueProducts"          INTEGER NOT NULL,
		"AvgInterpurchaseTime"    DOUBLE NOT NULL,
		"CLV_90_days"             DOUBLE NOT NULL,
		"predicted_purchases_90d" DOUBLE NOT NULL DEFAULT 0,
		"expected_monetary_value" DOUBLE NOT NULL DEFAULT 0,
		"probabilistic_clv_90d"   DOUBLE NOT NULL DEFAULT 0
	)`

// customer_summaries holds the purchase summaries the probabilistic columns
// were computed from, so serving can re-score customers exactly.
const createSummaryTable = `
	CREATE TABLE IF NOT EXISTS customer_summaries (
		"CustomerID"       VARCHAR PRIMARY KEY,
		"frequency"        DOUBLE NOT NULL,
		"recency"          DOUBLE NOT NULL,
		"T"                DOUBLE NOT NULL,
		"monetary_value"   DOUBLE NOT NULL,
		"observed_average" DOUBLE NOT NULL
	)`

// FeatureStore is the DuckDB-backed processed feature table.
type FeatureStore struct {
	conn   *sql.DB
	cfg    Config
	logger zerolog.Logger
}

// New opens the database at cfg.Path and applies pending migrations.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, logger zerolog.Logger) (*FeatureStore, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = DefaultConfig().MaxMemory
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Extensions are never needed; disable auto-install so restricted
	// networks cannot stall startup.
	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &FeatureStore{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "feature-store").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		closeQuietly(conn)
		return nil, err
	}
	return s, nil
}

// Close checkpoints file-backed databases and closes the connection.
func (s *FeatureStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.cfg.Path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
		if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return s.conn.Close()
}

// Ping checks if the database connection is alive.
func (s *FeatureStore) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.conn.PingContext(ctx)
}

// ensureContext applies the default query timeout when ctx has no deadline.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}
