// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package clustering

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// GMMConfig configures FitGMM.
type GMMConfig struct {
	K int

	// MaxIter bounds EM iterations.
	// Default: 100
	MaxIter int

	// Tol is the convergence threshold on the change in mean log-likelihood.
	// Default: 1e-3
	Tol float64

	// RegCovar is added to every covariance diagonal.
	// Default: 1e-6
	RegCovar float64

	// Seed drives the k-means initialisation.
	Seed int64
}

func (c GMMConfig) withDefaults() GMMConfig {
	if c.MaxIter <= 0 {
		c.MaxIter = 100
	}
	if c.Tol <= 0 {
		c.Tol = 1e-3
	}
	if c.RegCovar <= 0 {
		c.RegCovar = 1e-6
	}
	return c
}

// GaussianMixture is a fitted full-covariance Gaussian mixture.
type GaussianMixture struct {
	Weights []float64
	Means   [][]float64

	// Covariances holds one row-major dim x dim matrix per component.
	Covariances [][]float64

	// LowerBound is the mean per-sample log-likelihood at the last E-step.
	LowerBound float64
	Converged  bool
	Iterations int
}

// FitGMM fits a k-component mixture by expectation-maximisation, starting
// from a single k-means run, and returns the model and training labels.
func FitGMM(x [][]float64, cfg GMMConfig) (*GaussianMixture, []int, error) {
	cfg = cfg.withDefaults()

	_, initLabels, err := FitKMeans(x, KMeansConfig{K: cfg.K, NInit: 1, Seed: cfg.Seed})
	if err != nil {
		return nil, nil, err
	}

	n, k := len(x), cfg.K
	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
		resp[i][initLabels[i]] = 1
	}

	m := mStep(x, resp, cfg.RegCovar)
	prev := math.Inf(-1)
	for iter := 1; iter <= cfg.MaxIter; iter++ {
		lb, err := m.eStep(x, resp)
		if err != nil {
			return nil, nil, err
		}
		m = mStep(x, resp, cfg.RegCovar)
		m.Iterations = iter
		m.LowerBound = lb
		if math.Abs(lb-prev) < cfg.Tol {
			m.Converged = true
			break
		}
		prev = lb
	}

	labels, err := m.Predict(x)
	if err != nil {
		return nil, nil, err
	}
	return m, labels, nil
}

// K returns the number of components.
func (m *GaussianMixture) K() int {
	return len(m.Weights)
}

// Predict assigns each row to its most probable component.
func (m *GaussianMixture) Predict(x [][]float64) ([]int, error) {
	comps, err := m.components()
	if err != nil {
		return nil, err
	}
	dim := len(m.Means[0])
	labels := make([]int, len(x))
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		best, bestLP := 0, math.Inf(-1)
		for c, comp := range comps {
			if lp := math.Log(m.Weights[c]) + comp.LogProb(row); lp > bestLP {
				best, bestLP = c, lp
			}
		}
		labels[i] = best
	}
	return labels, nil
}

// components builds the per-component normal distributions.
func (m *GaussianMixture) components() ([]*distmv.Normal, error) {
	if len(m.Means) == 0 {
		return nil, fmt.Errorf("%w: model has no components", ErrDegenerate)
	}
	dim := len(m.Means[0])
	comps := make([]*distmv.Normal, len(m.Means))
	for c := range m.Means {
		sigma := mat.NewSymDense(dim, clone(m.Covariances[c]))
		normal, ok := distmv.NewNormal(m.Means[c], sigma, nil)
		if !ok {
			return nil, fmt.Errorf("%w: covariance of component %d is not positive definite", ErrDegenerate, c)
		}
		comps[c] = normal
	}
	return comps, nil
}

// eStep overwrites resp with posterior responsibilities and returns the mean
// log-likelihood.
func (m *GaussianMixture) eStep(x [][]float64, resp [][]float64) (float64, error) {
	comps, err := m.components()
	if err != nil {
		return 0, err
	}
	logWeights := make([]float64, len(m.Weights))
	for c, w := range m.Weights {
		logWeights[c] = math.Log(w)
	}

	total := 0.0
	for i, row := range x {
		lp := resp[i]
		for c, comp := range comps {
			lp[c] = logWeights[c] + comp.LogProb(row)
		}
		lse := floats.LogSumExp(lp)
		if math.IsNaN(lse) || math.IsInf(lse, 0) {
			return 0, fmt.Errorf("%w: non-finite likelihood at row %d", ErrDegenerate, i)
		}
		for c := range lp {
			lp[c] = math.Exp(lp[c] - lse)
		}
		total += lse
	}
	return total / float64(len(x)), nil
}

// mStep estimates weights, means and covariances from responsibilities.
func mStep(x [][]float64, resp [][]float64, reg float64) *GaussianMixture {
	n, k, dim := len(x), len(resp[0]), len(x[0])
	const eps = 10 * 2.220446049250313e-16

	m := &GaussianMixture{
		Weights:     make([]float64, k),
		Means:       make([][]float64, k),
		Covariances: make([][]float64, k),
	}
	for c := 0; c < k; c++ {
		nk := eps
		mean := make([]float64, dim)
		for i, row := range x {
			r := resp[i][c]
			nk += r
			floats.AddScaled(mean, r, row)
		}
		floats.Scale(1/nk, mean)

		cov := make([]float64, dim*dim)
		diff := make([]float64, dim)
		for i, row := range x {
			r := resp[i][c]
			if r == 0 {
				continue
			}
			floats.SubTo(diff, row, mean)
			for a := 0; a < dim; a++ {
				for b := a; b < dim; b++ {
					cov[a*dim+b] += r * diff[a] * diff[b]
				}
			}
		}
		for a := 0; a < dim; a++ {
			for b := a; b < dim; b++ {
				v := cov[a*dim+b] / nk
				cov[a*dim+b] = v
				cov[b*dim+a] = v
			}
			cov[a*dim+a] += reg
		}

		m.Weights[c] = nk / float64(n)
		m.Means[c] = mean
		m.Covariances[c] = cov
	}
	return m
}
