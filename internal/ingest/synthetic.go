// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package ingest

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/tomtom215/lodestar/internal/models"
)

// SyntheticConfig controls GenerateSynthetic.
type SyntheticConfig struct {
	// Customers is the number of distinct customer ids (C1000, C1001, ...).
	// Default: 500
	Customers int

	// Transactions is the number of rows generated.
	// Default: 20000
	Transactions int

	// Start is the earliest possible transaction day.
	// Default: 2023-01-01
	Start time.Time

	// SpanDays is the number of days after Start over which rows are spread.
	// Default: 690
	SpanDays int

	// Seed makes the output reproducible.
	// Default: 42
	Seed int64
}

// DefaultSyntheticConfig returns the demo dataset parameters.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Customers:    500,
		Transactions: 20000,
		Start:        time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		SpanDays:     690,
		Seed:         42,
	}
}

// GenerateSynthetic builds a reproducible transaction log. Each row picks a
// customer uniformly, a day in [0, SpanDays) and an hour in [0, 23), a
// quantity in [1, 9] and a unit price uniform in [5, 150) rounded to cents.
// Amount is quantity times unit price rounded to cents.
func GenerateSynthetic(cfg SyntheticConfig) ([]models.Transaction, error) {
	def := DefaultSyntheticConfig()
	if cfg.Customers <= 0 {
		cfg.Customers = def.Customers
	}
	if cfg.Transactions < 0 {
		return nil, fmt.Errorf("transactions must be non-negative, got %d", cfg.Transactions)
	}
	if cfg.Transactions == 0 {
		cfg.Transactions = def.Transactions
	}
	if cfg.Start.IsZero() {
		cfg.Start = def.Start
	}
	if cfg.SpanDays <= 0 {
		cfg.SpanDays = def.SpanDays
	}

	//nolint:gosec // G404: demo data does not need a cryptographic source
	rng := rand.New(rand.NewSource(cfg.Seed))

	customers := make([]string, cfg.Customers)
	for i := range customers {
		customers[i] = fmt.Sprintf("C%d", 1000+i)
	}

	out := make([]models.Transaction, cfg.Transactions)
	for i := range out {
		qty := 1 + rng.Intn(9)
		price := roundCents(5 + rng.Float64()*145)
		out[i] = models.Transaction{
			CustomerID: customers[rng.Intn(len(customers))],
			TransactionDate: cfg.Start.
				AddDate(0, 0, rng.Intn(cfg.SpanDays)).
				Add(time.Duration(rng.Intn(23)) * time.Hour),
			Quantity:  qty,
			UnitPrice: price,
			Amount:    roundCents(float64(qty) * price),
		}
	}
	return out, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
