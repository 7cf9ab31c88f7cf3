// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package clustering

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Silhouette returns the mean silhouette coefficient of labels over x using
// Euclidean distance. Samples alone in their cluster score 0.
func Silhouette(x [][]float64, labels []int) (float64, error) {
	n := len(x)
	if n != len(labels) {
		return 0, fmt.Errorf("%w: %d samples, %d labels", ErrDimensionMismatch, n, len(labels))
	}

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) > n-1 {
		return 0, fmt.Errorf("%w: %d clusters for %d samples", ErrSingleCluster, len(sizes), n)
	}

	// sums[i][label] is the total distance from sample i to members of label.
	sums := make([]map[int]float64, n)
	for i := range sums {
		sums[i] = make(map[int]float64, len(sizes))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(x[i], x[j], 2)
			sums[i][labels[j]] += d
			sums[j][labels[i]] += d
		}
	}

	total := 0.0
	for i := 0; i < n; i++ {
		own := labels[i]
		if sizes[own] == 1 {
			continue
		}
		a := sums[i][own] / float64(sizes[own]-1)
		b := -1.0
		for l, size := range sizes {
			if l == own {
				continue
			}
			if mean := sums[i][l] / float64(size); b < 0 || mean < b {
				b = mean
			}
		}
		if denom := max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n), nil
}
