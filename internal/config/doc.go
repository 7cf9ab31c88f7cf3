// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package config loads the Lodestar configuration.

Configuration is layered with koanf, later layers overriding earlier ones:

 1. Defaults built into the binary
 2. An optional YAML file, found through CONFIG_PATH or the default paths
 3. Environment variables listed in the mapping table of envTransformFunc

Load builds a single *Config that the caller passes explicitly to each
component. There is no package-level configuration state.

# Sections

  - data: raw log location and reader, watermark backend, DuckDB feature table, export path
  - features: target horizon of the feature builder
  - probabilistic: BG/NBD and Gamma-Gamma fitting
  - segmentation: k range, worker count and clustering parameters
  - validation: the expectation suite applied to each increment
  - registry: model registry directory, timeout, retry and circuit breaker
  - pipeline: schedule, timeout and model retention
  - server: HTTP API
  - logging: level and format
  - seeds: seed of the synthetic data generator

# Environment Variables

Selected variables (see envTransformFunc for the full table):

  - LODESTAR_RAW_DATA_PATH: raw transaction CSV (default: data/raw/transactions.csv)
  - LODESTAR_WATERMARK_BACKEND: file or badger (default: file)
  - LODESTAR_DUCKDB_PATH: feature table database (default: data/lodestar.duckdb)
  - LODESTAR_K_MIN / LODESTAR_K_MAX: segmentation k range (default: 3 / 5)
  - LODESTAR_REGISTRY_DIR: model registry directory (default: data/models)
  - LODESTAR_PIPELINE_INTERVAL: scheduled run interval (default: 24h)
  - LODESTAR_HTTP_PORT: API port (default: 8080)
  - LOG_LEVEL / LOG_FORMAT: logging (default: info / json)
*/
package config
