// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package clustering

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeansConfig configures FitKMeans.
type KMeansConfig struct {
	K int

	// NInit is the number of k-means++ restarts; the lowest inertia wins.
	// Default: 10
	NInit int

	// MaxIter bounds Lloyd iterations per restart.
	// Default: 300
	MaxIter int

	// Tol is the convergence threshold on total squared centroid movement,
	// relative to the mean column variance of the data.
	// Default: 1e-4
	Tol float64

	Seed int64
}

func (c KMeansConfig) withDefaults() KMeansConfig {
	if c.NInit <= 0 {
		c.NInit = 10
	}
	if c.MaxIter <= 0 {
		c.MaxIter = 300
	}
	if c.Tol <= 0 {
		c.Tol = 1e-4
	}
	return c
}

// KMeans is a fitted k-means model.
type KMeans struct {
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// FitKMeans clusters x into cfg.K groups and returns the model and the
// training labels.
func FitKMeans(x [][]float64, cfg KMeansConfig) (*KMeans, []int, error) {
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("%w: no samples", ErrDegenerate)
	}
	if err := checkMatrix(x, len(x[0])); err != nil {
		return nil, nil, err
	}
	if cfg.K < 1 || cfg.K > len(x) {
		return nil, nil, fmt.Errorf("%w: k=%d with %d samples", ErrDegenerate, cfg.K, len(x))
	}
	cfg = cfg.withDefaults()

	//nolint:gosec // G404: clustering initialisation does not need a cryptographic source
	rng := rand.New(rand.NewSource(cfg.Seed))
	tol := cfg.Tol * meanColumnVariance(x)

	var best *KMeans
	var bestLabels []int
	for run := 0; run < cfg.NInit; run++ {
		centroids := kmeansPlusPlus(x, cfg.K, rng)
		model, labels := lloyd(x, centroids, cfg.MaxIter, tol)
		if best == nil || model.Inertia < best.Inertia {
			best, bestLabels = model, labels
		}
	}
	return best, bestLabels, nil
}

// K returns the number of clusters.
func (m *KMeans) K() int {
	return len(m.Centroids)
}

// Predict assigns each row to its nearest centroid.
func (m *KMeans) Predict(x [][]float64) ([]int, error) {
	if len(m.Centroids) == 0 {
		return nil, fmt.Errorf("%w: model has no centroids", ErrDegenerate)
	}
	dim := len(m.Centroids[0])
	labels := make([]int, len(x))
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		labels[i], _ = nearest(row, m.Centroids)
	}
	return labels, nil
}

// kmeansPlusPlus picks k initial centroids, each new one sampled with
// probability proportional to its squared distance from the chosen set.
func kmeansPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(x[rng.Intn(len(x))]))

	d2 := make([]float64, len(x))
	for i, row := range x {
		d2[i] = sqDist(row, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(d2)
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if acc >= target {
					next = i
					break
				}
			}
		} else {
			next = rng.Intn(len(x))
		}
		c := clone(x[next])
		centroids = append(centroids, c)
		for i, row := range x {
			if d := sqDist(row, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

// lloyd runs Lloyd iterations from centroids until the squared centroid
// shift is at most tol or maxIter is reached.
func lloyd(x [][]float64, centroids [][]float64, maxIter int, tol float64) (*KMeans, []int) {
	k, dim := len(centroids), len(x[0])
	labels := make([]int, len(x))
	iter := 0

	for iter < maxIter {
		iter++
		for i, row := range x {
			labels[i], _ = nearest(row, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range x {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := 0; c < k; c++ {
			var next []float64
			if counts[c] == 0 {
				// Re-seed an empty cluster at the point farthest from its centroid.
				next = clone(x[farthest(x, labels, centroids)])
			} else {
				next = sums[c]
				floats.Scale(1/float64(counts[c]), next)
			}
			shift += sqDist(next, centroids[c])
			centroids[c] = next
		}
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for i, row := range x {
		var d float64
		labels[i], d = nearest(row, centroids)
		inertia += d
	}
	return &KMeans{Centroids: centroids, Inertia: inertia, Iterations: iter}, labels
}

// nearest returns the index of the closest centroid and the squared distance to it.
// Ties go to the lower index.
func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func farthest(x [][]float64, labels []int, centroids [][]float64) int {
	idx, maxD := 0, -1.0
	for i, row := range x {
		if d := sqDist(row, centroids[labels[i]]); d > maxD {
			idx, maxD = i, d
		}
	}
	return idx
}

func meanColumnVariance(x [][]float64) float64 {
	dim := len(x[0])
	col := make([]float64, len(x))
	total := 0.0
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		total += std * std
	}
	return total / float64(dim)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
