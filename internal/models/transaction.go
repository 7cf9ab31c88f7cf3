// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package models

import (
	"sort"
	"time"
)

// Raw transaction log column names.
const (
	ColCustomerID      = "CustomerID"
	ColTransactionDate = "TransactionDate"
	ColQuantity        = "Quantity"
	ColUnitPrice       = "UnitPrice"
	ColAmount          = "Amount"
)

// TransactionColumns lists the raw log columns in file order.
var TransactionColumns = []string{ColCustomerID, ColTransactionDate, ColQuantity, ColUnitPrice, ColAmount}

// Transaction is a single purchase from the raw transaction log.
// Amount is expected to be close to Quantity * UnitPrice but is not derived from it.
type Transaction struct {
	CustomerID      string    `json:"customer_id" validate:"required"`
	TransactionDate time.Time `json:"transaction_date" validate:"required"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	Amount          float64   `json:"amount"`
}

// SortTransactions returns a copy of txs ordered by timestamp, then customer id.
// The input slice is not modified.
func SortTransactions(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// MaxTransactionDate returns the latest timestamp in txs and false when txs is empty.
func MaxTransactionDate(txs []Transaction) (time.Time, bool) {
	if len(txs) == 0 {
		return time.Time{}, false
	}
	maxTS := txs[0].TransactionDate
	for _, tx := range txs[1:] {
		if tx.TransactionDate.After(maxTS) {
			maxTS = tx.TransactionDate
		}
	}
	return maxTS, true
}
