// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"sort"
	"time"

	"github.com/tomtom215/lodestar/internal/models"
)

// Summary is the per-customer RFM-T input to both models.
type Summary = models.PurchaseSummary

// dayIndex returns the UTC calendar day number of ts.
func dayIndex(ts time.Time) int64 {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// Summarize aggregates txs at or before observationEnd into one Summary per
// customer, sorted by CustomerID.
func Summarize(txs []models.Transaction, observationEnd time.Time) []Summary {
	type dayTotal struct {
		day   int64
		spend float64
	}
	perCustomer := make(map[string]map[int64]float64)
	for i := range txs {
		tx := &txs[i]
		if tx.TransactionDate.After(observationEnd) {
			continue
		}
		days, ok := perCustomer[tx.CustomerID]
		if !ok {
			days = make(map[int64]float64)
			perCustomer[tx.CustomerID] = days
		}
		days[dayIndex(tx.TransactionDate)] += tx.Amount
	}

	endDay := dayIndex(observationEnd)
	out := make([]Summary, 0, len(perCustomer))
	for id, days := range perCustomer {
		totals := make([]dayTotal, 0, len(days))
		for d, s := range days {
			totals = append(totals, dayTotal{day: d, spend: s})
		}
		sort.Slice(totals, func(i, j int) bool { return totals[i].day < totals[j].day })

		first, last := totals[0].day, totals[len(totals)-1].day
		all, repeat := 0.0, 0.0
		for i, dt := range totals {
			all += dt.spend
			if i > 0 {
				repeat += dt.spend
			}
		}

		s := Summary{
			CustomerID:      id,
			Frequency:       float64(len(totals) - 1),
			Recency:         float64(last - first),
			T:               float64(endDay - first),
			ObservedAverage: all / float64(len(totals)),
		}
		if s.Frequency > 0 {
			s.MonetaryValue = repeat / s.Frequency
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
