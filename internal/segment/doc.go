// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package segment trains customer segmentation models and labels segments.
//
// # Model Selection
//
// Trainer standardises the shared segmentation feature set, then fits one
// candidate per (k, family) pair for k in [KMin, KMax] and families
// {kmeans, gmm}. Candidates are fitted concurrently and scored with the
// silhouette coefficient. Selection happens only after every fit has
// finished: candidates are compared in enumeration order (k ascending,
// kmeans before gmm) and a later candidate replaces the current best only
// with a strictly higher score, so ties go to the earlier candidate no matter
// which goroutine finished first.
//
// A candidate whose fit or score fails is logged and skipped. The run fails
// with ErrAllCandidatesFailed only when no candidate succeeds.
//
// # Labeling
//
// Cluster ids are opaque. Label ranks clusters by mean probabilistic CLV and
// assigns business labels by rank. The resulting cluster-to-label map is
// stored with the trained model so serving can label predictions without
// recomputing cluster statistics.
package segment
