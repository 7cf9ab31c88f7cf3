// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package clustering provides the numeric building blocks for customer
// segmentation: feature standardisation, k-means, Gaussian mixtures and the
// silhouette score.
//
// Inputs are row-major [][]float64 matrices, one row per customer. All
// fitted types have exported fields so they can be stored in the model
// registry with encoding/gob.
//
// Fitting is deterministic for a given seed: every random choice is drawn
// from a math/rand source created from the configured seed, so concurrent
// fits of different candidates do not influence each other.
package clustering
