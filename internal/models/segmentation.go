// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package models

import "fmt"

// FeatureSet names the ordered feature columns a segmentation model is
// trained on. Version changes whenever Columns change so that a scaler
// fitted on one set is never applied to another.
type FeatureSet struct {
	Version int      `json:"version"`
	Columns []string `json:"columns"`
}

// SegmentationFeatureVersion is the version of SegmentationFeatureSet.
const SegmentationFeatureVersion = 1

// SegmentationFeatureSet returns the columns used to train and score
// segmentation models. Both training and serving build their vectors from it.
func SegmentationFeatureSet() FeatureSet {
	return FeatureSet{
		Version: SegmentationFeatureVersion,
		Columns: []string{ColRecency, ColFrequency, ColMonetaryValue, ColProbabilisticCLV},
	}
}

// Equal reports whether two feature sets declare the same version and columns.
func (s FeatureSet) Equal(other FeatureSet) bool {
	if s.Version != other.Version || len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Column returns the numeric value of the named feature column.
//
//nolint:gocritic // records are small values and copied on purpose
func (f CustomerFeatures) Column(name string) (float64, error) {
	switch name {
	case ColRecency:
		return float64(f.Recency), nil
	case ColFrequency:
		return float64(f.Frequency), nil
	case ColMonetaryValue:
		return f.MonetaryValue, nil
	case ColCustomerTenure:
		return float64(f.CustomerTenure), nil
	case ColAvgOrderValue:
		return f.AvgOrderValue, nil
	case ColSpendingVolatility:
		return f.SpendingVolatility, nil
	case ColUniqueProducts:
		return float64(f.UniqueProducts), nil
	case ColAvgInterpurchaseTime:
		return f.AvgInterpurchaseTime, nil
	case ColCLV90Days:
		return f.CLV90Days, nil
	case ColPredictedPurchases:
		return f.PredictedPurchases90d, nil
	case ColExpectedMonetary:
		return f.ExpectedMonetaryValue, nil
	case ColProbabilisticCLV:
		return f.ProbabilisticCLV90d, nil
	}
	return 0, fmt.Errorf("unknown feature column %q", name)
}

// SegmentedCustomer is a feature record with its opaque cluster id.
type SegmentedCustomer struct {
	Features CustomerFeatures `json:"features"`
	Cluster  int              `json:"cluster"`
}

// LabeledCustomer is a segmented customer with its business label.
type LabeledCustomer struct {
	SegmentedCustomer
	Label string `json:"segment_label"`
}

// ClusterProfile summarises one cluster for labeling and reporting.
type ClusterProfile struct {
	Cluster          int     `json:"cluster"`
	Size             int     `json:"size"`
	Recency          float64 `json:"Recency"`
	Frequency        float64 `json:"Frequency"`
	MonetaryValue    float64 `json:"MonetaryValue"`
	ProbabilisticCLV float64 `json:"probabilistic_clv_90d"`
	Label            string  `json:"segment_label"`
}
