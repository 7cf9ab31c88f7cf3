// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package clustering

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/lodestar/internal/models"
)

var (
	// ErrDegenerate is returned when the input cannot support the requested fit.
	ErrDegenerate = errors.New("degenerate clustering input")

	// ErrSingleCluster is returned when a labelling has too few or too many
	// distinct clusters to score.
	ErrSingleCluster = errors.New("silhouette requires 2 <= clusters <= samples-1")

	// ErrDimensionMismatch is returned when a row has the wrong number of columns.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrFeatureSetMismatch is returned when a scaler is applied to features
	// from a different feature set version.
	ErrFeatureSetMismatch = errors.New("feature set mismatch")
)

// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Columns with zero variance keep scale 1.
type StandardScaler struct {
	FeatureSet models.FeatureSet
	Mean       []float64
	Scale      []float64
}

// FitScaler computes column statistics for x, whose columns are fs.Columns.
func FitScaler(x [][]float64, fs models.FeatureSet) (*StandardScaler, error) {
	dim := len(fs.Columns)
	if err := checkMatrix(x, dim); err != nil {
		return nil, err
	}

	s := &StandardScaler{
		FeatureSet: fs,
		Mean:       make([]float64, dim),
		Scale:      make([]float64, dim),
	}
	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// Check returns ErrFeatureSetMismatch unless fs is the set the scaler was fitted on.
func (s *StandardScaler) Check(fs models.FeatureSet) error {
	if !s.FeatureSet.Equal(fs) {
		return fmt.Errorf("%w: scaler fitted on version %d %v, got version %d %v",
			ErrFeatureSetMismatch, s.FeatureSet.Version, s.FeatureSet.Columns, fs.Version, fs.Columns)
	}
	return nil
}

// Transform returns a standardised copy of x.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	dim := len(s.Mean)
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		z := make([]float64, dim)
		for j, v := range row {
			z[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = z
	}
	return out, nil
}

// checkMatrix verifies x is non-empty, rectangular with dim columns and finite.
func checkMatrix(x [][]float64, dim int) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no samples", ErrDegenerate)
	}
	if dim == 0 {
		return fmt.Errorf("%w: no features", ErrDegenerate)
	}
	for i, row := range x {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at row %d column %d", ErrDegenerate, i, j)
			}
		}
	}
	return nil
}
