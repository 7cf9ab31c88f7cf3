// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package models defines the records that flow through the Lodestar pipeline.

Key types:

  - Transaction: one row of the raw transaction log, immutable once ingested
  - CustomerFeatures: one row of the processed feature table, keyed by CustomerID,
    carrying RFM and behavioral features, the CLV_90_days target and the
    merged probabilistic columns
  - ProbabilisticFeatures: per-customer output of the BG/NBD and Gamma-Gamma models
  - SegmentedCustomer / LabeledCustomer: cluster assignments and their business labels

The column names used in CSV files, DuckDB tables and JSON payloads are the
same everywhere and are declared once in this package. The subset of columns
used for segmentation is declared by SegmentationFeatureSet and is shared by
training and serving.
*/
package models
