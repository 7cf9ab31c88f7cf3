// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	// DuckDB driver - read_csv scans large logs faster than encoding/csv
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/lodestar/internal/models"
)

const readCSVQuery = `
	SELECT CustomerID, TransactionDate, Quantity, UnitPrice, Amount
	FROM read_csv(?, header = true, columns = {
		'CustomerID': 'VARCHAR',
		'TransactionDate': 'TIMESTAMP',
		'Quantity': 'BIGINT',
		'UnitPrice': 'DOUBLE',
		'Amount': 'DOUBLE'
	})`

// DuckDBSource reads the raw log through DuckDB's CSV reader using an
// in-memory database.
type DuckDBSource struct {
	path string
}

// NewDuckDBSource creates a DuckDB-backed source for the CSV file at path.
func NewDuckDBSource(path string) *DuckDBSource {
	return &DuckDBSource{path: path}
}

// ReadAll implements Source.
func (s *DuckDBSource) ReadAll(ctx context.Context) ([]models.Transaction, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.path)
	}

	conn, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, readCSVQuery, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Transaction
	for rows.Next() {
		var (
			tx       models.Transaction
			customer sql.NullString
			quantity int64
		)
		if err := rows.Scan(&customer, &tx.TransactionDate, &quantity, &tx.UnitPrice, &tx.Amount); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrMalformedSource, err)
		}
		tx.CustomerID = customer.String
		tx.Quantity = int(quantity)
		tx.TransactionDate = tx.TransactionDate.UTC()
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	return out, nil
}
