// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"fmt"
	"math"
)

// BGNBDParams are the fitted BG/NBD parameters. R and Alpha shape the gamma
// purchase-rate distribution; A and B shape the beta dropout distribution.
type BGNBDParams struct {
	R     float64
	Alpha float64
	A     float64
	B     float64
}

// BGNBD is a fitted beta-geometric/negative-binomial purchase model.
type BGNBD struct {
	Params    BGNBDParams
	Penalizer float64

	// LogLikelihood is the mean per-customer log-likelihood at the optimum, on the scaled time axis.
	LogLikelihood float64
	Customers     int
}

// FitBGNBD fits a BG/NBD model to summaries. Time is rescaled so the oldest
// customer has T = 10 during optimisation; Alpha is reported in days.
func FitBGNBD(summaries []Summary, cfg FitConfig) (*BGNBD, error) {
	if len(summaries) == 0 {
		return nil, ErrInsufficientData
	}
	cfg = cfg.withDefaults()

	maxT := 0.0
	for i := range summaries {
		maxT = math.Max(maxT, summaries[i].T)
	}
	scale := 1.0
	if maxT > 0 {
		scale = 10 / maxT
	}

	n := float64(len(summaries))
	objective := func(p []float64) float64 {
		r, alpha, a, b := p[0], p[1], p[2], p[3]
		total := 0.0
		for i := range summaries {
			s := &summaries[i]
			total += bgnbdLogLikelihood(r, alpha, a, b, s.Frequency, s.Recency*scale, s.T*scale)
		}
		return -total/n + cfg.Penalizer*sumSquares(p)
	}

	p, f, err := minimizeLogParams(4, nil, cfg, objective)
	if err != nil {
		return nil, fmt.Errorf("fit bg/nbd: %w", err)
	}

	return &BGNBD{
		Params: BGNBDParams{
			R:     p[0],
			Alpha: p[1] / scale,
			A:     p[2],
			B:     p[3],
		},
		Penalizer:     cfg.Penalizer,
		LogLikelihood: -(f - cfg.Penalizer*sumSquares(p)),
		Customers:     len(summaries),
	}, nil
}

// bgnbdLogLikelihood is the individual BG/NBD log-likelihood for x repeat
// purchases, recency tx and age T.
func bgnbdLogLikelihood(r, alpha, a, b, x, tx, T float64) float64 {
	lgR, _ := math.Lgamma(r)
	lgRX, _ := math.Lgamma(r + x)
	lgAB, _ := math.Lgamma(a + b)
	lgBX, _ := math.Lgamma(b + x)
	lgB, _ := math.Lgamma(b)
	lgABX, _ := math.Lgamma(a + b + x)

	a1 := lgRX - lgR + r*math.Log(alpha)
	a2 := lgAB + lgBX - lgB - lgABX
	a3 := -(r + x) * math.Log(alpha+T)
	if x == 0 {
		return a1 + a2 + a3
	}
	a4 := math.Log(a) - math.Log(b+x-1) - (r+x)*math.Log(alpha+tx)
	return a1 + a2 + logAddExp(a3, a4)
}

func logAddExp(x, y float64) float64 {
	m := math.Max(x, y)
	if math.IsInf(m, -1) {
		return m
	}
	return m + math.Log(math.Exp(x-m)+math.Exp(y-m))
}

// ExpectedPurchases returns the expected number of purchases in the next t
// days for a customer with x repeat purchases, recency tx and age T.
func (m *BGNBD) ExpectedPurchases(t, x, tx, T float64) (float64, error) {
	r, alpha, a, b := m.Params.R, m.Params.Alpha, m.Params.A, m.Params.B
	if t <= 0 {
		return 0, nil
	}

	z := t / (alpha + T + t)
	lnHyp, sign, err := logHyp2f1(r+x, b+x, a+b+x-1, z)
	if err != nil {
		return 0, fmt.Errorf("%w: expected purchases for x=%g tx=%g T=%g: %v", ErrNonFinite, x, tx, T, err)
	}
	if sign <= 0 {
		return 0, fmt.Errorf("%w: non-positive 2F1 for x=%g tx=%g T=%g", ErrNonFinite, x, tx, T)
	}

	numerator := 1 - math.Exp(lnHyp+(r+x)*math.Log((alpha+T)/(alpha+t+T)))
	numerator *= (a + b + x - 1) / (a - 1)

	denominator := 1.0
	if x > 0 {
		denominator += (a / (b + x - 1)) * math.Pow((alpha+T)/(alpha+tx), r+x)
	}

	e := numerator / denominator
	if !finite(e) {
		return 0, fmt.Errorf("%w: expected purchases for x=%g tx=%g T=%g", ErrNonFinite, x, tx, T)
	}
	return math.Max(e, 0), nil
}

// ProbabilityAlive returns P(alive | x, tx, T).
func (m *BGNBD) ProbabilityAlive(x, tx, T float64) float64 {
	if x == 0 {
		return 1
	}
	r, alpha, a, b := m.Params.R, m.Params.Alpha, m.Params.A, m.Params.B
	logRatio := math.Log(a) - math.Log(b+x-1) + (r+x)*math.Log((alpha+T)/(alpha+tx))
	return 1 / (1 + math.Exp(logRatio))
}
