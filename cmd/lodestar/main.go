// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Command lodestar runs the customer lifetime value and segmentation pipeline
// and serves its predictions.
//
// # Commands
//
//	lodestar generate --out data/raw/transactions.csv   write a synthetic transaction log
//	lodestar ingest                                     load and validate new transactions
//	lodestar run [--force]                              run the full pipeline once
//	lodestar serve                                      scheduled pipeline and HTTP API
//	lodestar watermark get | set <timestamp>            inspect or reset the resume point
//	lodestar version
//
// # Configuration
//
// Configuration is layered with koanf (highest priority wins):
//   - Environment variables (LODESTAR_*, LOG_LEVEL, LOG_FORMAT)
//   - Config file (--config, $CONFIG_PATH, ./config.yaml, /etc/lodestar/config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// serve and run stop on SIGINT and SIGTERM. serve shuts the HTTP server down
// gracefully and lets the supervisor tree cancel an in-flight pipeline run.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
