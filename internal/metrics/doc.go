// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package metrics declares the Prometheus collectors exported by Lodestar.
//
// Collectors are package-level promauto variables registered with the default
// registry; the API exposes them at /metrics. Helper functions such as
// RecordStage and RecordCandidate keep label handling in one place.
package metrics
