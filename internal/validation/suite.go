// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/lodestar/internal/models"
)

// SuiteConfig declares the expectation set applied to every increment.
type SuiteConfig struct {
	// QuantityMin and QuantityMax bound Quantity inclusively.
	// Default: 1 and 10000
	QuantityMin int `koanf:"quantity_min"`
	QuantityMax int `koanf:"quantity_max"`

	// UnitPriceMin and UnitPriceMax bound UnitPrice inclusively.
	// Default: 0 and 100000
	UnitPriceMin float64 `koanf:"unit_price_min"`
	UnitPriceMax float64 `koanf:"unit_price_max"`

	// AmountMin is the smallest accepted Amount.
	// Default: 0
	AmountMin float64 `koanf:"amount_min"`

	// AmountTolerance is the absolute difference allowed between Amount and
	// Quantity * UnitPrice. Zero disables the check.
	// Default: 0.01
	AmountTolerance float64 `koanf:"amount_tolerance"`

	// MaxFutureSkew is how far past the current time a TransactionDate may lie.
	// Default: 24h
	MaxFutureSkew time.Duration `koanf:"max_future_skew"`

	// SampleLimit caps the violations kept per expectation.
	// Default: 20
	SampleLimit int `koanf:"sample_limit"`
}

// DefaultSuiteConfig returns the default expectation set.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		QuantityMin:     1,
		QuantityMax:     10000,
		UnitPriceMin:    0,
		UnitPriceMax:    100000,
		AmountMin:       0,
		AmountTolerance: 0.01,
		MaxFutureSkew:   24 * time.Hour,
		SampleLimit:     20,
	}
}

// Validate checks the configuration for contradictions.
func (c SuiteConfig) Validate() error {
	if c.QuantityMin > c.QuantityMax {
		return fmt.Errorf("validation.quantity_min (%d) must not exceed quantity_max (%d)", c.QuantityMin, c.QuantityMax)
	}
	if c.UnitPriceMin > c.UnitPriceMax {
		return fmt.Errorf("validation.unit_price_min (%g) must not exceed unit_price_max (%g)", c.UnitPriceMin, c.UnitPriceMax)
	}
	if c.AmountTolerance < 0 {
		return fmt.Errorf("validation.amount_tolerance must be non-negative, got %g", c.AmountTolerance)
	}
	if c.MaxFutureSkew < 0 {
		return fmt.Errorf("validation.max_future_skew must be non-negative, got %s", c.MaxFutureSkew)
	}
	return nil
}

// ExpectationResult is the outcome of one expectation.
type ExpectationResult struct {
	Name            string      `json:"expectation"`
	Success         bool        `json:"success"`
	UnexpectedCount int         `json:"unexpected_count"`
	Sample          []Violation `json:"sample,omitempty"`
}

// Result is the outcome of validating one batch.
type Result struct {
	Success      bool                `json:"success"`
	Evaluated    int                 `json:"evaluated_rows"`
	Expectations []ExpectationResult `json:"results"`
}

// FailedExpectations returns the names of failed expectations in declaration order.
func (r *Result) FailedExpectations() []string {
	var out []string
	for _, e := range r.Expectations {
		if !e.Success {
			out = append(out, e.Name)
		}
	}
	return out
}

// Violations returns the sampled violations of all failed expectations.
func (r *Result) Violations() []Violation {
	var out []Violation
	for _, e := range r.Expectations {
		out = append(out, e.Sample...)
	}
	return out
}

// Summary is a one-line description suitable for logs and errors.
func (r *Result) Summary() string {
	if r.Success {
		return fmt.Sprintf("%d rows passed %d expectations", r.Evaluated, len(r.Expectations))
	}
	parts := make([]string, 0, len(r.Expectations))
	for _, e := range r.Expectations {
		if !e.Success {
			parts = append(parts, fmt.Sprintf("%s (%d rows)", e.Name, e.UnexpectedCount))
		}
	}
	return "failed: " + strings.Join(parts, ", ")
}

// Suite is an ordered set of expectations.
type Suite struct {
	expectations []Expectation
	sampleLimit  int
}

// NewSuite builds the standard expectation set from cfg.
func NewSuite(cfg SuiteConfig) *Suite {
	return NewSuiteWithClock(cfg, time.Now)
}

// NewSuiteWithClock is NewSuite with an injectable clock for the future-date check.
func NewSuiteWithClock(cfg SuiteConfig, now func() time.Time) *Suite {
	exps := []Expectation{
		NonEmptyBatch(),
		RowSchema(),
		FiniteValues(),
		QuantityBetween(cfg.QuantityMin, cfg.QuantityMax),
		UnitPriceBetween(cfg.UnitPriceMin, cfg.UnitPriceMax),
		AmountAtLeast(cfg.AmountMin),
		NotInFuture(now, cfg.MaxFutureSkew),
	}
	if cfg.AmountTolerance > 0 {
		exps = append(exps, AmountMatchesQuantityTimesPrice(cfg.AmountTolerance))
	}
	return NewCustomSuite(cfg.SampleLimit, exps...)
}

// NewCustomSuite builds a suite from explicit expectations.
func NewCustomSuite(sampleLimit int, exps ...Expectation) *Suite {
	if sampleLimit <= 0 {
		sampleLimit = 20
	}
	return &Suite{expectations: exps, sampleLimit: sampleLimit}
}

// Names returns the expectation names in evaluation order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.expectations))
	for i, e := range s.expectations {
		names[i] = e.Name()
	}
	return names
}

// Validate evaluates every expectation against batch.
func (s *Suite) Validate(batch []models.Transaction) *Result {
	res := &Result{
		Success:      true,
		Evaluated:    len(batch),
		Expectations: make([]ExpectationResult, 0, len(s.expectations)),
	}
	for _, exp := range s.expectations {
		violations := exp.Check(batch)
		er := ExpectationResult{Name: exp.Name(), Success: len(violations) == 0, UnexpectedCount: len(violations)}
		if len(violations) > s.sampleLimit {
			violations = violations[:s.sampleLimit]
		}
		er.Sample = violations
		if !er.Success {
			res.Success = false
		}
		res.Expectations = append(res.Expectations, er)
	}
	return res
}
