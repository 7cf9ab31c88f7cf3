// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package ingest reads the raw transaction log and admits new transactions
// into the pipeline.
//
// The Loader is watermark-driven: each run reads the whole log, keeps the
// rows whose TransactionDate is strictly after the persisted watermark,
// validates that increment as a unit, and only then advances the watermark
// to the latest timestamp in the increment. A rejected increment leaves the
// watermark untouched so the same batch is retried by the next run.
//
// Sources:
//
//   - CSVSource: encoding/csv reader with columns matched by header name
//   - DuckDBSource: DuckDB read_csv, useful for large logs
//
// GenerateSynthetic produces a seeded demo log with the same columns.
package ingest
