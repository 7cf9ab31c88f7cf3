// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

/*
Package database stores the processed feature table in DuckDB.

The table holds one row per customer, keyed by CustomerID, with the columns
of models.FeatureColumns. Each pipeline run replaces the whole table inside
a single transaction, so readers see either the previous run or the new one.

Lookups of unknown customers are reported, never ignored:

	f, err := store.Get(ctx, "C1042")
	if errors.Is(err, database.ErrCustomerNotFound) {
		// 404
	}

GetMany returns a *NotFoundError listing every missing id. ExportCSV writes
the table with DuckDB's COPY statement, producing the processed feature
table file consumed by dashboards.
*/
package database
