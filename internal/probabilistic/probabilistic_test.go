// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"math"
	"testing"
	"time"

	"github.com/tomtom215/lodestar/internal/models"
)

var day0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func tx(id string, day int, hour int, amount float64) models.Transaction {
	return models.Transaction{
		CustomerID:      id,
		TransactionDate: day0.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour),
		Quantity:        1,
		UnitPrice:       amount,
		Amount:          amount,
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// cdnow holds the published BG/NBD and Gamma-Gamma estimates for the CDNOW
// sample (time in weeks).
var cdnow = BGNBD{Params: BGNBDParams{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}}

func TestSummarize(t *testing.T) {
	txs := []models.Transaction{
		tx("A", 0, 9, 10),
		tx("A", 0, 15, 5), // same day as the first purchase
		tx("A", 3, 12, 20),
		tx("A", 10, 8, 30),
		tx("A", 25, 8, 99), // after observation end
		tx("B", 5, 23, 40),
		tx("C", 30, 0, 15), // only after observation end
	}
	end := day0.AddDate(0, 0, 20)

	got := Summarize(txs, end)
	if len(got) != 2 {
		t.Fatalf("Summarize() returned %d customers, want 2", len(got))
	}

	a := got[0]
	if a.CustomerID != "A" {
		t.Fatalf("got[0].CustomerID = %q, want A", a.CustomerID)
	}
	if a.Frequency != 2 || a.Recency != 10 || a.T != 20 {
		t.Errorf("A frequency/recency/T = %v/%v/%v, want 2/10/20", a.Frequency, a.Recency, a.T)
	}
	if !approxEqual(a.MonetaryValue, 25, 1e-9) {
		t.Errorf("A MonetaryValue = %v, want 25", a.MonetaryValue)
	}
	if !approxEqual(a.ObservedAverage, 65.0/3, 1e-9) {
		t.Errorf("A ObservedAverage = %v, want %v", a.ObservedAverage, 65.0/3)
	}

	b := got[1]
	if b.Frequency != 0 || b.Recency != 0 || b.T != 15 {
		t.Errorf("B frequency/recency/T = %v/%v/%v, want 0/0/15", b.Frequency, b.Recency, b.T)
	}
	if b.MonetaryValue != 0 || b.ObservedAverage != 40 {
		t.Errorf("B monetary/observed = %v/%v, want 0/40", b.MonetaryValue, b.ObservedAverage)
	}
}

func TestBGNBD_ExpectedPurchases(t *testing.T) {
	tests := []struct {
		name      string
		t, x, tx  float64
		T         float64
		want      float64
		tolerance float64
	}{
		{"published example", 39, 2, 30.43, 38.86, 1.226, 0.001},
		{"shorter horizon", 10, 2, 30.43, 38.86, 0.35697, 0.0005},
		{"no repeat purchases", 39, 0, 0, 38.86, 0.19510, 0.0005},
		{"zero horizon", 0, 2, 30.43, 38.86, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cdnow.ExpectedPurchases(tt.t, tt.x, tt.tx, tt.T)
			if err != nil {
				t.Fatalf("ExpectedPurchases() error = %v", err)
			}
			if !approxEqual(got, tt.want, tt.tolerance) {
				t.Errorf("ExpectedPurchases() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBGNBD_ExpectedPurchasesMonotone(t *testing.T) {
	prev := 0.0
	for _, horizon := range []float64{1, 5, 10, 20, 39, 80} {
		got, err := cdnow.ExpectedPurchases(horizon, 3, 20, 38)
		if err != nil {
			t.Fatalf("ExpectedPurchases(%v) error = %v", horizon, err)
		}
		if got < prev {
			t.Errorf("ExpectedPurchases(%v) = %v, less than shorter horizon %v", horizon, got, prev)
		}
		prev = got
	}

	// More recent activity means a customer is more likely still active.
	stale, _ := cdnow.ExpectedPurchases(39, 3, 5, 38)
	fresh, _ := cdnow.ExpectedPurchases(39, 3, 37, 38)
	if fresh <= stale {
		t.Errorf("recent customer %v <= stale customer %v", fresh, stale)
	}
}

func TestBGNBD_ProbabilityAlive(t *testing.T) {
	if got := cdnow.ProbabilityAlive(0, 0, 38); got != 1 {
		t.Errorf("ProbabilityAlive(x=0) = %v, want 1", got)
	}
	p := cdnow.ProbabilityAlive(2, 30.43, 38.86)
	if p <= 0 || p >= 1 {
		t.Errorf("ProbabilityAlive() = %v, want in (0, 1)", p)
	}
}

func TestBGNBDLogLikelihood(t *testing.T) {
	p := cdnow.Params
	got := bgnbdLogLikelihood(p.R, p.Alpha, p.A, p.B, 2, 30.43, 38.86)
	if !approxEqual(got, -9.458606, 1e-5) {
		t.Errorf("bgnbdLogLikelihood(x=2) = %v, want -9.458606", got)
	}
	got = bgnbdLogLikelihood(p.R, p.Alpha, p.A, p.B, 0, 0, 38.86)
	if !approxEqual(got, -0.554713, 1e-5) {
		t.Errorf("bgnbdLogLikelihood(x=0) = %v, want -0.554713", got)
	}
}

func TestGammaGamma(t *testing.T) {
	gg := GammaGamma{Params: GammaGammaParams{P: 6.25, Q: 3.74, V: 15.44}}

	if got := gg.PopulationMean(); !approxEqual(got, 35.218978, 1e-5) {
		t.Errorf("PopulationMean() = %v, want 35.218978", got)
	}

	tests := []struct {
		x, m float64
		want float64
	}{
		{1, 30, 31.590656},
		{5, 50, 48.808473},
	}
	for _, tt := range tests {
		got, err := gg.ConditionalExpectedValue(tt.x, tt.m)
		if err != nil {
			t.Fatalf("ConditionalExpectedValue(%v, %v) error = %v", tt.x, tt.m, err)
		}
		if !approxEqual(got, tt.want, 1e-5) {
			t.Errorf("ConditionalExpectedValue(%v, %v) = %v, want %v", tt.x, tt.m, got, tt.want)
		}
	}

	if got := gammaGammaLogLikelihood(6.25, 3.74, 15.44, 2, 35); !approxEqual(got, -4.095817, 1e-5) {
		t.Errorf("gammaGammaLogLikelihood() = %v, want -4.095817", got)
	}

	degenerate := GammaGamma{Params: GammaGammaParams{P: 1, Q: 0.5, V: 1}}
	if _, err := degenerate.ConditionalExpectedValue(1, 10); err == nil {
		t.Error("ConditionalExpectedValue() with q <= 1 error = nil, want ErrNonFinite")
	}
}

func TestRepeatCustomers(t *testing.T) {
	in := []Summary{
		{CustomerID: "a", Frequency: 0, ObservedAverage: 10},
		{CustomerID: "b", Frequency: 2, MonetaryValue: 15},
		{CustomerID: "c", Frequency: 1, MonetaryValue: 0},
	}
	got := RepeatCustomers(in)
	if len(got) != 1 || got[0].CustomerID != "b" {
		t.Errorf("RepeatCustomers() = %+v, want only b", got)
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := FitBGNBD(nil, DefaultFitConfig()); err == nil {
		t.Error("FitBGNBD(nil) error = nil, want ErrInsufficientData")
	}
	oneTimers := []Summary{{CustomerID: "a", T: 10, ObservedAverage: 5}}
	if _, err := FitGammaGamma(oneTimers, DefaultFitConfig()); err == nil {
		t.Error("FitGammaGamma(no repeat customers) error = nil, want ErrInsufficientData")
	}
}
