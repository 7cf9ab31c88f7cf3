// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package cache provides a generic, thread-safe LRU cache with TTL expiry.
// The API uses it to memoise per-customer predictions of a loaded model handle.
package cache
