// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomtom215/lodestar/internal/models"
)

var selectFeatures = `SELECT ` + quotedColumns() + ` FROM customer_features`

func quotedColumns() string {
	cols := make([]string, len(models.FeatureColumns))
	for i, c := range models.FeatureColumns {
		cols[i] = `"` + c + `"`
	}
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeatures(row rowScanner) (models.CustomerFeatures, error) {
	var f models.CustomerFeatures
	err := row.Scan(
		&f.CustomerID,
		&f.Recency, &f.Frequency, &f.MonetaryValue,
		&f.CustomerTenure, &f.AvgOrderValue, &f.SpendingVolatility,
		&f.UniqueProducts, &f.AvgInterpurchaseTime, &f.CLV90Days,
		&f.PredictedPurchases90d, &f.ExpectedMonetaryValue, &f.ProbabilisticCLV90d,
	)
	return f, err
}

const selectSummaries = `SELECT "CustomerID", "frequency", "recency", "T", "monetary_value", "observed_average"
	FROM customer_summaries`

func checkUnique[T any](kind string, items []T, id func(*T) string) (map[string]bool, error) {
	seen := make(map[string]bool, len(items))
	for i := range items {
		key := id(&items[i])
		if seen[key] {
			return nil, fmt.Errorf("duplicate customer %s in %s", key, kind)
		}
		seen[key] = true
	}
	return seen, nil
}

// Replace swaps the feature and summary tables for rows and summaries in a
// single transaction. CustomerID must be unique within each slice and every
// summary must belong to one of rows.
func (s *FeatureStore) Replace(ctx context.Context, rows []models.CustomerFeatures, summaries []models.PurchaseSummary) (err error) {
	known, err := checkUnique("feature rows", rows, func(f *models.CustomerFeatures) string { return f.CustomerID })
	if err != nil {
		return err
	}
	if _, err = checkUnique("purchase summaries", summaries, func(p *models.PurchaseSummary) string { return p.CustomerID }); err != nil {
		return err
	}
	for i := range summaries {
		if !known[summaries[i].CustomerID] {
			return fmt.Errorf("purchase summary for customer %s has no feature row", summaries[i].CustomerID)
		}
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM customer_features"); err != nil {
		return fmt.Errorf("failed to clear feature table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO customer_features (`+quotedColumns()+`)
		VALUES (`+placeholders(len(models.FeatureColumns))+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range rows {
		f := &rows[i]
		if _, err = stmt.ExecContext(ctx,
			f.CustomerID,
			f.Recency, f.Frequency, f.MonetaryValue,
			f.CustomerTenure, f.AvgOrderValue, f.SpendingVolatility,
			f.UniqueProducts, f.AvgInterpurchaseTime, f.CLV90Days,
			f.PredictedPurchases90d, f.ExpectedMonetaryValue, f.ProbabilisticCLV90d,
		); err != nil {
			return fmt.Errorf("failed to insert customer %s: %w", f.CustomerID, err)
		}
	}

	if err = replaceSummaries(ctx, tx, summaries); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feature table: %w", err)
	}
	s.logger.Info().
		Int("rows", len(rows)).
		Int("summaries", len(summaries)).
		Msg("Replaced processed feature table")
	return nil
}

func replaceSummaries(ctx context.Context, tx *sql.Tx, summaries []models.PurchaseSummary) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM customer_summaries"); err != nil {
		return fmt.Errorf("failed to clear summary table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO customer_summaries
		("CustomerID", "frequency", "recency", "T", "monetary_value", "observed_average")
		VALUES (`+placeholders(6)+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare summary insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range summaries {
		p := &summaries[i]
		if _, err := stmt.ExecContext(ctx,
			p.CustomerID, p.Frequency, p.Recency, p.T, p.MonetaryValue, p.ObservedAverage,
		); err != nil {
			return fmt.Errorf("failed to insert summary for customer %s: %w", p.CustomerID, err)
		}
	}
	return nil
}

// GetSummaries returns the stored purchase summaries for ids, keyed by
// CustomerID. Customers without a summary are absent from the map.
func (s *FeatureStore) GetSummaries(ctx context.Context, ids []string) (map[string]models.PurchaseSummary, error) {
	out := make(map[string]models.PurchaseSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.conn.QueryContext(ctx,
		selectSummaries+` WHERE "CustomerID" IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase summaries: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var p models.PurchaseSummary
		if err := rows.Scan(&p.CustomerID, &p.Frequency, &p.Recency, &p.T, &p.MonetaryValue, &p.ObservedAverage); err != nil {
			return nil, fmt.Errorf("failed to scan purchase summary: %w", err)
		}
		out[p.CustomerID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read purchase summaries: %w", err)
	}
	return out, nil
}

// Get returns the feature row for id, or ErrCustomerNotFound.
func (s *FeatureStore) Get(ctx context.Context, id string) (models.CustomerFeatures, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx, selectFeatures+` WHERE "CustomerID" = ?`, id)
	f, err := scanFeatures(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CustomerFeatures{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	if err != nil {
		return models.CustomerFeatures{}, fmt.Errorf("failed to query customer %s: %w", id, err)
	}
	return f, nil
}

// GetMany returns the rows for ids in request order, ignoring duplicate ids.
// If any id is unknown it returns a *NotFoundError listing all of them.
func (s *FeatureStore) GetMany(ctx context.Context, ids []string) ([]models.CustomerFeatures, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	args := make([]any, len(unique))
	for i, id := range unique {
		args[i] = id
	}
	rows, err := s.conn.QueryContext(ctx,
		selectFeatures+` WHERE "CustomerID" IN (`+placeholders(len(unique))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer closeQuietly(rows)

	found := make(map[string]models.CustomerFeatures, len(unique))
	for rows.Next() {
		f, err := scanFeatures(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		found[f.CustomerID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	out := make([]models.CustomerFeatures, 0, len(unique))
	var missing []string
	for _, id := range unique {
		f, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, f)
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	return out, nil
}

// All returns every row ordered by CustomerID.
func (s *FeatureStore) All(ctx context.Context) ([]models.CustomerFeatures, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, selectFeatures+` ORDER BY "CustomerID"`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature table: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.CustomerFeatures
	for rows.Next() {
		f, err := scanFeatures(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Count returns the number of rows in the table.
func (s *FeatureStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM customer_features").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count feature rows: %w", err)
	}
	return n, nil
}

// ExportCSV writes the table, ordered by CustomerID and with a header row,
// to outputPath.
func (s *FeatureStore) ExportCSV(ctx context.Context, outputPath string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create export directory %s: %w", dir, err)
		}
	}

	// COPY does not take a bound target; the path is quoted as a literal.
	target := "'" + strings.ReplaceAll(outputPath, "'", "''") + "'"
	query := `COPY (` + selectFeatures + ` ORDER BY "CustomerID") TO ` + target + ` (FORMAT CSV, HEADER true)`
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to export feature table: %w", err)
	}
	s.logger.Info().Str("path", outputPath).Msg("Exported processed feature table")
	return nil
}
