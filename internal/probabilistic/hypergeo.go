// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"errors"
	"fmt"
	"math"
)

// errHypergeo is returned when 2F1 cannot be evaluated.
var errHypergeo = errors.New("hypergeometric 2F1")

const (
	hypMaxTerms = 500000
	hypTol      = 1e-16

	// rescale the running sum once a term exceeds it by this many e-folds.
	hypRescale = 600
)

// logHyp2f1 returns log|2F1(a, b; c; z)| and the sign of 2F1 for z < 1.
//
// Negative z is mapped into (0, 1) with the Pfaff transformation
//
//	2F1(a, b; c; z) = (1-z)^(-a) 2F1(a, c-b; c; z/(z-1))
//
// and for z > 1/2 the Euler transformation
//
//	2F1(a, b; c; z) = (1-z)^(c-a-b) 2F1(c-a, c-b; c; z)
//
// is used whenever it shrinks the upper parameters.
func logHyp2f1(a, b, c, z float64) (logAbs, sign float64, err error) {
	switch {
	case math.IsNaN(a) || math.IsNaN(b) || math.IsNaN(c) || math.IsNaN(z):
		return math.NaN(), 0, fmt.Errorf("%w: NaN argument", errHypergeo)
	case z >= 1:
		return math.NaN(), 0, fmt.Errorf("%w: z=%g outside the unit disc", errHypergeo, z)
	case c <= 0 && c == math.Trunc(c):
		return math.NaN(), 0, fmt.Errorf("%w: c=%g is a pole", errHypergeo, c)
	case z == 0:
		return 0, 1, nil
	case z < 0:
		l, s, err := hyp2f1Series(a, c-b, c, z/(z-1))
		return l - a*math.Log1p(-z), s, err
	case z > 0.5 && math.Abs(c-a)+math.Abs(c-b) < math.Abs(a)+math.Abs(b):
		l, s, err := hyp2f1Series(c-a, c-b, c, z)
		return l + (c-a-b)*math.Log1p(-z), s, err
	}
	return hyp2f1Series(a, b, c, z)
}

// hyp2f1Series sums the Gauss series for 0 <= z < 1. Terms are carried as a
// log magnitude and a sign; the partial sum is sum*exp(scale).
func hyp2f1Series(a, b, c, z float64) (float64, float64, error) {
	if z == 0 {
		return 0, 1, nil
	}
	logZ := math.Log(z)

	logTerm, termSign := 0.0, 1.0
	sum, scale := 1.0, 0.0
	for n := 0; n < hypMaxTerms; n++ {
		fn := float64(n)
		ratio := (a + fn) * (b + fn) / ((c + fn) * (fn + 1))
		if ratio == 0 {
			// a or b is a non-positive integer: the series is a polynomial.
			return finishSeries(sum, scale)
		}
		if ratio < 0 {
			termSign = -termSign
		}
		logTerm += math.Log(math.Abs(ratio)) + logZ

		if logTerm-scale > hypRescale {
			sum *= math.Exp(scale - logTerm)
			scale = logTerm
		}
		contrib := math.Exp(logTerm - scale)
		sum += termSign * contrib

		shrink := math.Abs(ratio) * z
		if shrink < 1 && fn > math.Abs(a)+math.Abs(b) &&
			contrib/(1-shrink) <= hypTol*math.Abs(sum) {
			return finishSeries(sum, scale)
		}
	}
	return math.NaN(), 0, fmt.Errorf("%w: series did not converge for a=%g b=%g c=%g z=%g", errHypergeo, a, b, c, z)
}

func finishSeries(sum, scale float64) (float64, float64, error) {
	switch {
	case sum > 0:
		return math.Log(sum) + scale, 1, nil
	case sum < 0:
		return math.Log(-sum) + scale, -1, nil
	}
	return math.Inf(-1), 0, nil
}
