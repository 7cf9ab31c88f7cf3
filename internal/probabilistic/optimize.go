// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInsufficientData is returned when there are no customers to fit.
	ErrInsufficientData = errors.New("insufficient data to fit model")

	// ErrNotConverged is returned when the optimizer ends without a finite optimum.
	ErrNotConverged = errors.New("model fit did not converge")

	// ErrNonFinite is returned when a prediction is NaN or infinite.
	ErrNonFinite = errors.New("non-finite model output")
)

// FitConfig controls a maximum-likelihood fit.
type FitConfig struct {
	// Penalizer is the L2 coefficient applied to the positive parameters.
	Penalizer float64

	// MaxIterations bounds Nelder-Mead major iterations.
	MaxIterations int
}

// DefaultFitConfig returns a penalizer of 0.001 and 2000 iterations.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Penalizer:     0.001,
		MaxIterations: 2000,
	}
}

func (c FitConfig) withDefaults() FitConfig {
	if c.Penalizer < 0 {
		c.Penalizer = 0
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultFitConfig().MaxIterations
	}
	return c
}

// minimizeLogParams minimises objective over params[i] = lower[i] + exp(x[i]),
// starting from x = 0.1 for every dimension, and returns the parameters and
// final value. A nil lower bounds every parameter below by 0.
func minimizeLogParams(dim int, lower []float64, cfg FitConfig, objective func(params []float64) float64) ([]float64, float64, error) {
	if lower == nil {
		lower = make([]float64, dim)
	}
	if len(lower) != dim {
		return nil, 0, fmt.Errorf("%d lower bounds for %d parameters", len(lower), dim)
	}

	params := make([]float64, dim)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i, v := range x {
				params[i] = lower[i] + math.Exp(v)
			}
			f := objective(params)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return math.Inf(1)
			}
			return f
		},
	}

	x0 := make([]float64, dim)
	for i := range x0 {
		x0[i] = 0.1
	}
	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, 0, fmt.Errorf("%w: objective is not finite (status %v)", ErrNotConverged, result.Status)
	}

	out := make([]float64, dim)
	for i, v := range result.X {
		free := math.Exp(v)
		if math.IsInf(free, 0) || math.IsNaN(free) || free == 0 {
			return nil, 0, fmt.Errorf("%w: parameter %d is degenerate", ErrNotConverged, i)
		}
		out[i] = lower[i] + free
	}
	return out, result.F, nil
}

func sumSquares(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x * x
	}
	return s
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
