// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package features turns a transaction log into one feature row per customer.
//
// The log is split at cutoff = snapshot - horizon. Features (RFM, tenure,
// order value statistics, interpurchase time) are computed from the training
// window (TransactionDate <= cutoff); the CLV_90_days target is the spend in
// the target window (cutoff, cutoff + horizon] in training mode, or
// (cutoff, ∞) in serving mode. Only customers with at least one purchase in
// the training window get a row.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/lodestar/internal/models"
)

// DefaultHorizon is the forward-looking evaluation window.
const DefaultHorizon = 90 * 24 * time.Hour

var (
	// ErrNoTransactions is returned when the log is empty.
	ErrNoTransactions = errors.New("no transactions")

	// ErrEmptyTrainingWindow is returned when no transaction falls at or before the cutoff.
	ErrEmptyTrainingWindow = errors.New("training window is empty")
)

// Mode selects how the target window is bounded.
type Mode int

const (
	// ModeTraining bounds the target window to exactly one horizon after the cutoff.
	ModeTraining Mode = iota
	// ModeServing leaves the target window open-ended.
	ModeServing
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeServing {
		return "serving"
	}
	return "training"
}

// Options controls one Build call.
type Options struct {
	// Snapshot is the reference date. Zero means the latest TransactionDate.
	Snapshot time.Time

	// Horizon is the target window length. Zero means DefaultHorizon.
	Horizon time.Duration

	Mode Mode
}

// Result is the output of Build.
type Result struct {
	Features     []models.CustomerFeatures
	Snapshot     time.Time
	Cutoff       time.Time
	TrainingRows int
	TargetRows   int
}

// Split returns the training window (<= cutoff) and target window
// (cutoff < t <= end, or cutoff < t when end is zero). Input is not modified.
func Split(txs []models.Transaction, cutoff, end time.Time) (train, target []models.Transaction) {
	for i := range txs {
		ts := txs[i].TransactionDate
		switch {
		case !ts.After(cutoff):
			train = append(train, txs[i])
		case end.IsZero() || !ts.After(end):
			target = append(target, txs[i])
		}
	}
	return train, target
}

// Cutoff returns the training cutoff for opts over txs.
func Cutoff(txs []models.Transaction, opts Options) (snapshot, cutoff time.Time, err error) {
	snapshot = opts.Snapshot
	if snapshot.IsZero() {
		maxTS, ok := models.MaxTransactionDate(txs)
		if !ok {
			return time.Time{}, time.Time{}, ErrNoTransactions
		}
		snapshot = maxTS
	}
	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return snapshot, snapshot.Add(-horizon), nil
}

// Build computes the feature table. Rows are sorted by CustomerID so that
// identical input always produces an identical table.
func Build(txs []models.Transaction, opts Options) (*Result, error) {
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}
	snapshot, cutoff, err := Cutoff(txs, opts)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if opts.Mode == ModeTraining {
		end = snapshot // cutoff + horizon
	}

	train, target := Split(txs, cutoff, end)
	if len(train) == 0 {
		return nil, fmt.Errorf("%w: cutoff %s", ErrEmptyTrainingWindow, cutoff.Format(time.RFC3339))
	}

	targets := make(map[string]float64)
	for i := range target {
		targets[target[i].CustomerID] += target[i].Amount
	}

	groups := groupByCustomer(train)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.CustomerFeatures, 0, len(ids))
	for _, id := range ids {
		f := customerFeatures(id, groups[id], cutoff)
		f.CLV90Days = targets[id]
		out = append(out, f)
	}

	return &Result{
		Features:     out,
		Snapshot:     snapshot,
		Cutoff:       cutoff,
		TrainingRows: len(train),
		TargetRows:   len(target),
	}, nil
}

type purchase struct {
	at        time.Time
	amount    float64
	unitPrice float64
}

func groupByCustomer(txs []models.Transaction) map[string][]purchase {
	groups := make(map[string][]purchase)
	for i := range txs {
		tx := &txs[i]
		groups[tx.CustomerID] = append(groups[tx.CustomerID], purchase{at: tx.TransactionDate, amount: tx.Amount, unitPrice: tx.UnitPrice})
	}
	for _, ps := range groups {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].at.Before(ps[j].at) })
	}
	return groups
}

// customerFeatures computes one row from purchases sorted by time.
func customerFeatures(id string, ps []purchase, cutoff time.Time) models.CustomerFeatures {
	amounts := make([]float64, len(ps))
	prices := make(map[float64]struct{}, len(ps))
	total := 0.0
	for i, p := range ps {
		amounts[i] = p.amount
		total += p.amount
		prices[p.unitPrice] = struct{}{}
	}

	first, last := ps[0].at, ps[len(ps)-1].at
	f := models.CustomerFeatures{
		CustomerID:     id,
		Recency:        WholeDays(cutoff.Sub(last)),
		Frequency:      len(ps),
		MonetaryValue:  total,
		CustomerTenure: WholeDays(cutoff.Sub(first)),
		AvgOrderValue:  stat.Mean(amounts, nil),
		UniqueProducts: len(prices),
	}

	if len(ps) > 1 {
		f.SpendingVolatility = stat.StdDev(amounts, nil)
		gaps := 0
		for i := 1; i < len(ps); i++ {
			gaps += WholeDays(ps[i].at.Sub(ps[i-1].at))
		}
		f.AvgInterpurchaseTime = float64(gaps) / float64(len(ps)-1)
	}
	return f
}

// WholeDays floors d to a number of days.
func WholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
