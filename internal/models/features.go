// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package models

// Processed feature table column names.
const (
	ColRecency              = "Recency"
	ColFrequency            = "Frequency"
	ColMonetaryValue        = "MonetaryValue"
	ColCustomerTenure       = "CustomerTenure"
	ColAvgOrderValue        = "AvgOrderValue"
	ColSpendingVolatility   = "SpendingVolatility"
	ColUniqueProducts       = "UniqueProducts"
	ColAvgInterpurchaseTime = "AvgInterpurchaseTime"
	ColCLV90Days            = "CLV_90_days"
	ColPredictedPurchases   = "predicted_purchases_90d"
	ColExpectedMonetary     = "expected_monetary_value"
	ColProbabilisticCLV     = "probabilistic_clv_90d"
)

// FeatureColumns lists the processed feature table columns in file order.
var FeatureColumns = []string{
	ColCustomerID,
	ColRecency, ColFrequency, ColMonetaryValue,
	ColCustomerTenure, ColAvgOrderValue, ColSpendingVolatility,
	ColUniqueProducts, ColAvgInterpurchaseTime, ColCLV90Days,
	ColPredictedPurchases, ColExpectedMonetary, ColProbabilisticCLV,
}

// CustomerFeatures is one row of the processed feature table.
//
// Recency and CustomerTenure are whole days measured back from the training
// cutoff. SpendingVolatility and AvgInterpurchaseTime are 0 for customers
// with a single purchase. CLV90Days is the realised spend in the target window
// and is 0, never missing, for customers who did not buy in it.
type CustomerFeatures struct {
	CustomerID           string  `json:"CustomerID"`
	Recency              int     `json:"Recency"`
	Frequency            int     `json:"Frequency"`
	MonetaryValue        float64 `json:"MonetaryValue"`
	CustomerTenure       int     `json:"CustomerTenure"`
	AvgOrderValue        float64 `json:"AvgOrderValue"`
	SpendingVolatility   float64 `json:"SpendingVolatility"`
	UniqueProducts       int     `json:"UniqueProducts"`
	AvgInterpurchaseTime float64 `json:"AvgInterpurchaseTime"`
	CLV90Days            float64 `json:"CLV_90_days"`

	PredictedPurchases90d float64 `json:"predicted_purchases_90d"`
	ExpectedMonetaryValue float64 `json:"expected_monetary_value"`
	ProbabilisticCLV90d   float64 `json:"probabilistic_clv_90d"`
}

// WithProbabilistic returns a copy of f with the probabilistic columns set from p.
//
//nolint:gocritic // records are small values and copied on purpose
func (f CustomerFeatures) WithProbabilistic(p ProbabilisticFeatures) CustomerFeatures {
	f.PredictedPurchases90d = p.PredictedPurchases90d
	f.ExpectedMonetaryValue = p.ExpectedMonetaryValue
	f.ProbabilisticCLV90d = p.ProbabilisticCLV90d
	return f
}

// Probabilistic returns the probabilistic columns of f.
//
//nolint:gocritic // records are small values and copied on purpose
func (f CustomerFeatures) Probabilistic() ProbabilisticFeatures {
	return ProbabilisticFeatures{
		CustomerID:            f.CustomerID,
		PredictedPurchases90d: f.PredictedPurchases90d,
		ExpectedMonetaryValue: f.ExpectedMonetaryValue,
		ProbabilisticCLV90d:   f.ProbabilisticCLV90d,
	}
}

// ProbabilisticFeatures is the per-customer output of the probabilistic CLV estimator.
type ProbabilisticFeatures struct {
	CustomerID            string  `json:"CustomerID"`
	PredictedPurchases90d float64 `json:"predicted_purchases_90d"`
	ExpectedMonetaryValue float64 `json:"expected_monetary_value"`
	ProbabilisticCLV90d   float64 `json:"probabilistic_clv_90d"`
}

// PurchaseSummary is a customer's repeat-purchase history at the training
// cutoff, the input to the BG/NBD and Gamma-Gamma models. Time is measured in
// calendar days; purchases on the same day count as one purchase period.
type PurchaseSummary struct {
	CustomerID string `json:"CustomerID"`

	// Frequency is the number of purchase days after the first one.
	Frequency float64 `json:"frequency"`

	// Recency is the number of days between the first and last purchase day.
	Recency float64 `json:"recency"`

	// T is the number of days between the first purchase day and the end of observation.
	T float64 `json:"T"`

	// MonetaryValue is the mean spend per repeat purchase day, 0 when Frequency is 0.
	MonetaryValue float64 `json:"monetary_value"`

	// ObservedAverage is the mean spend per purchase day over all purchase days.
	ObservedAverage float64 `json:"observed_average"`
}
