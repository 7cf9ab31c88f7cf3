// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package validation

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/lodestar/internal/models"
)

// Violation is one row that broke one expectation.
type Violation struct {
	Row        int    `json:"row"`
	CustomerID string `json:"customer_id,omitempty"`
	Column     string `json:"column,omitempty"`
	Message    string `json:"message"`
}

// Expectation is a single declared rule over a transaction batch.
// Check must not modify batch and must report violations in row order.
type Expectation interface {
	Name() string
	Check(batch []models.Transaction) []Violation
}

// rowSchema applies the struct tags declared on models.Transaction.
type rowSchema struct{}

// RowSchema returns the expectation that every row satisfies the
// Transaction struct tags (customer id and timestamp present).
func RowSchema() Expectation { return rowSchema{} }

func (rowSchema) Name() string { return "expect_rows_to_match_schema" }

func (rowSchema) Check(batch []models.Transaction) []Violation {
	var out []Violation
	for i := range batch {
		if serr := ValidateStruct(&batch[i]); serr != nil {
			for _, fe := range serr.Fields {
				out = append(out, Violation{Row: i, CustomerID: batch[i].CustomerID, Column: fe.Field, Message: fe.Message})
			}
		}
	}
	return out
}

// valueRange checks a numeric column against inclusive bounds.
type valueRange struct {
	column   string
	min, max float64
	value    func(tx *models.Transaction) float64
}

// QuantityBetween expects Quantity within [minQty, maxQty].
func QuantityBetween(minQty, maxQty int) Expectation {
	return valueRange{
		column: models.ColQuantity, min: float64(minQty), max: float64(maxQty),
		value: func(tx *models.Transaction) float64 { return float64(tx.Quantity) },
	}
}

// UnitPriceBetween expects UnitPrice within [minPrice, maxPrice].
func UnitPriceBetween(minPrice, maxPrice float64) Expectation {
	return valueRange{
		column: models.ColUnitPrice, min: minPrice, max: maxPrice,
		value: func(tx *models.Transaction) float64 { return tx.UnitPrice },
	}
}

// AmountAtLeast expects Amount >= minAmount.
func AmountAtLeast(minAmount float64) Expectation {
	return valueRange{
		column: models.ColAmount, min: minAmount, max: math.Inf(1),
		value: func(tx *models.Transaction) float64 { return tx.Amount },
	}
}

func (e valueRange) Name() string {
	return "expect_column_values_to_be_between:" + e.column
}

func (e valueRange) tag() string {
	tag := "gte=" + strconv.FormatFloat(e.min, 'f', -1, 64)
	if !math.IsInf(e.max, 1) {
		tag += ",lte=" + strconv.FormatFloat(e.max, 'f', -1, 64)
	}
	return tag
}

func (e valueRange) Check(batch []models.Transaction) []Violation {
	tag := e.tag()
	var out []Violation
	for i := range batch {
		v := e.value(&batch[i])
		if math.IsNaN(v) {
			out = append(out, Violation{Row: i, CustomerID: batch[i].CustomerID, Column: e.column, Message: e.column + " is NaN"})
			continue
		}
		if serr := ValidateVar(e.column, v, tag); serr != nil {
			out = append(out, Violation{Row: i, CustomerID: batch[i].CustomerID, Column: e.column, Message: serr.Error()})
		}
	}
	return out
}

// finiteValues rejects NaN and infinite prices and amounts.
type finiteValues struct{}

// FiniteValues expects UnitPrice and Amount to be finite numbers.
func FiniteValues() Expectation { return finiteValues{} }

func (finiteValues) Name() string { return "expect_column_values_to_be_finite" }

func (finiteValues) Check(batch []models.Transaction) []Violation {
	var out []Violation
	for i := range batch {
		tx := &batch[i]
		if math.IsNaN(tx.UnitPrice) || math.IsInf(tx.UnitPrice, 0) {
			out = append(out, Violation{Row: i, CustomerID: tx.CustomerID, Column: models.ColUnitPrice, Message: "UnitPrice is not finite"})
		}
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			out = append(out, Violation{Row: i, CustomerID: tx.CustomerID, Column: models.ColAmount, Message: "Amount is not finite"})
		}
	}
	return out
}

// notInFuture rejects timestamps later than now + skew.
type notInFuture struct {
	now  func() time.Time
	skew time.Duration
}

// NotInFuture expects TransactionDate <= now() + skew.
func NotInFuture(now func() time.Time, skew time.Duration) Expectation {
	if now == nil {
		now = time.Now
	}
	return notInFuture{now: now, skew: skew}
}

func (notInFuture) Name() string { return "expect_transaction_date_not_in_future" }

func (e notInFuture) Check(batch []models.Transaction) []Violation {
	limit := e.now().Add(e.skew)
	var out []Violation
	for i := range batch {
		if batch[i].TransactionDate.After(limit) {
			out = append(out, Violation{
				Row: i, CustomerID: batch[i].CustomerID, Column: models.ColTransactionDate,
				Message: fmt.Sprintf("TransactionDate %s is after %s", batch[i].TransactionDate.Format(time.RFC3339), limit.Format(time.RFC3339)),
			})
		}
	}
	return out
}

// amountConsistency compares Amount with Quantity * UnitPrice in decimal arithmetic.
type amountConsistency struct {
	tolerance decimal.Decimal
}

// AmountMatchesQuantityTimesPrice expects |Amount - Quantity*UnitPrice| <= tolerance.
func AmountMatchesQuantityTimesPrice(tolerance float64) Expectation {
	return amountConsistency{tolerance: decimal.NewFromFloat(tolerance)}
}

func (amountConsistency) Name() string { return "expect_amount_to_equal_quantity_times_unit_price" }

func (e amountConsistency) Check(batch []models.Transaction) []Violation {
	var out []Violation
	for i := range batch {
		tx := &batch[i]
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || math.IsNaN(tx.UnitPrice) || math.IsInf(tx.UnitPrice, 0) {
			continue // reported by FiniteValues
		}
		expected := decimal.NewFromInt(int64(tx.Quantity)).Mul(decimal.NewFromFloat(tx.UnitPrice))
		diff := decimal.NewFromFloat(tx.Amount).Sub(expected).Abs()
		if diff.GreaterThan(e.tolerance) {
			out = append(out, Violation{
				Row: i, CustomerID: tx.CustomerID, Column: models.ColAmount,
				Message: fmt.Sprintf("Amount %s differs from Quantity*UnitPrice %s by %s", decimal.NewFromFloat(tx.Amount).String(), expected.String(), diff.String()),
			})
		}
	}
	return out
}

// nonEmpty fails an empty batch.
type nonEmpty struct{}

// NonEmptyBatch expects at least one row.
func NonEmptyBatch() Expectation { return nonEmpty{} }

func (nonEmpty) Name() string { return "expect_table_row_count_to_be_positive" }

func (nonEmpty) Check(batch []models.Transaction) []Violation {
	if len(batch) == 0 {
		return []Violation{{Row: -1, Message: "batch is empty"}}
	}
	return nil
}
