// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"fmt"
	"math"
)

// GammaGammaParams are the fitted Gamma-Gamma spend parameters.
type GammaGammaParams struct {
	P float64
	Q float64
	V float64
}

// GammaGamma is a fitted Gamma-Gamma spend model.
type GammaGamma struct {
	Params        GammaGammaParams
	Penalizer     float64
	LogLikelihood float64
	Customers     int
}

// FitGammaGamma fits the spend model on customers with at least one repeat
// purchase and a positive monetary value. Others are ignored.
//
// Q is constrained above 1 so the population mean spend v*p/(q-1) exists.
// The objective is the mean negative log-likelihood plus
// Penalizer * (p² + q² + v²).
func FitGammaGamma(summaries []Summary, cfg FitConfig) (*GammaGamma, error) {
	repeat := RepeatCustomers(summaries)
	if len(repeat) == 0 {
		return nil, fmt.Errorf("fit gamma-gamma: %w: no repeat customers", ErrInsufficientData)
	}
	cfg = cfg.withDefaults()

	n := float64(len(repeat))
	objective := func(p []float64) float64 {
		total := 0.0
		for i := range repeat {
			total += gammaGammaLogLikelihood(p[0], p[1], p[2], repeat[i].Frequency, repeat[i].MonetaryValue)
		}
		return -total/n + cfg.Penalizer*sumSquares(p)
	}

	p, f, err := minimizeLogParams(3, []float64{0, 1, 0}, cfg, objective)
	if err != nil {
		return nil, fmt.Errorf("fit gamma-gamma: %w", err)
	}

	return &GammaGamma{
		Params:        GammaGammaParams{P: p[0], Q: p[1], V: p[2]},
		Penalizer:     cfg.Penalizer,
		LogLikelihood: -(f - cfg.Penalizer*sumSquares(p)),
		Customers:     len(repeat),
	}, nil
}

// RepeatCustomers returns the summaries eligible for the spend model.
func RepeatCustomers(summaries []Summary) []Summary {
	out := make([]Summary, 0, len(summaries))
	for i := range summaries {
		if summaries[i].Frequency > 0 && summaries[i].MonetaryValue > 0 {
			out = append(out, summaries[i])
		}
	}
	return out
}

func gammaGammaLogLikelihood(p, q, v, x, m float64) float64 {
	px := p * x
	lgPXQ, _ := math.Lgamma(px + q)
	lgPX, _ := math.Lgamma(px)
	lgQ, _ := math.Lgamma(q)
	return lgPXQ - lgPX - lgQ +
		q*math.Log(v) +
		(px-1)*math.Log(m) +
		px*math.Log(x) -
		(px+q)*math.Log(x*m+v)
}

// ConditionalExpectedValue returns the expected spend per transaction for a
// customer with frequency repeat purchases averaging monetary. The result is
// a weighted blend of the population mean and the customer's own average,
// p(v + x·m) / (p·x + q - 1).
func (m *GammaGamma) ConditionalExpectedValue(frequency, monetary float64) (float64, error) {
	p, q, v := m.Params.P, m.Params.Q, m.Params.V
	if q <= 1 {
		return 0, fmt.Errorf("%w: gamma-gamma q=%g has no finite population mean", ErrNonFinite, q)
	}
	e := p * (v + frequency*monetary) / (p*frequency + q - 1)
	if !finite(e) {
		return 0, fmt.Errorf("%w: expected value for frequency=%g monetary=%g", ErrNonFinite, frequency, monetary)
	}
	return e, nil
}

// PopulationMean returns the model's mean spend per transaction.
func (m *GammaGamma) PopulationMean() float64 {
	if m.Params.Q <= 1 {
		return math.NaN()
	}
	return m.Params.V * m.Params.P / (m.Params.Q - 1)
}
