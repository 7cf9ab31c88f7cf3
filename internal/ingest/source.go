// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/lodestar/internal/models"
)

var (
	// ErrSourceNotFound is returned when the raw transaction log does not exist.
	ErrSourceNotFound = errors.New("raw transaction log not found")

	// ErrMalformedSource is returned when the log cannot be parsed.
	ErrMalformedSource = errors.New("malformed transaction log")
)

// Source reads every transaction in the raw log.
type Source interface {
	ReadAll(ctx context.Context) ([]models.Transaction, error)
}

// timestampLayouts are tried in order when parsing TransactionDate.
// Timestamps without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 transaction timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// CSVSource reads the raw log from a CSV file with a header row.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSV source for path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// ReadAll implements Source.
func (s *CSVSource) ReadAll(ctx context.Context) ([]models.Transaction, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	return ReadCSV(ctx, f)
}

// ReadCSV parses transactions from r. Columns are located by header name and
// may appear in any order; extra columns are ignored.
func ReadCSV(ctx context.Context, r io.Reader) ([]models.Transaction, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedSource, err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	cols := make([]int, len(models.TransactionColumns))
	for i, name := range models.TransactionColumns {
		pos, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrMalformedSource, name)
		}
		cols[i] = pos
	}

	var out []models.Transaction
	line := 1
	for {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSource, line, err)
		}
		tx, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSource, line, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func parseRecord(rec []string, cols []int) (models.Transaction, error) {
	var tx models.Transaction
	tx.CustomerID = strings.TrimSpace(rec[cols[0]])

	ts, err := ParseTimestamp(rec[cols[1]])
	if err != nil {
		return tx, err
	}
	tx.TransactionDate = ts

	qty, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
	if err != nil {
		return tx, fmt.Errorf("Quantity: %w", err)
	}
	if qty != float64(int(qty)) {
		return tx, fmt.Errorf("Quantity %v is not an integer", qty)
	}
	tx.Quantity = int(qty)

	if tx.UnitPrice, err = strconv.ParseFloat(strings.TrimSpace(rec[cols[3]]), 64); err != nil {
		return tx, fmt.Errorf("UnitPrice: %w", err)
	}
	if tx.Amount, err = strconv.ParseFloat(strings.TrimSpace(rec[cols[4]]), 64); err != nil {
		return tx, fmt.Errorf("Amount: %w", err)
	}
	return tx, nil
}

// WriteCSV writes txs with the standard header. Timestamps are written
// as "2006-01-02 15:04:05" in UTC.
func WriteCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.TransactionColumns); err != nil {
		return err
	}
	for i := range txs {
		tx := &txs[i]
		rec := []string{
			tx.CustomerID,
			tx.TransactionDate.UTC().Format("2006-01-02 15:04:05"),
			strconv.Itoa(tx.Quantity),
			strconv.FormatFloat(tx.UnitPrice, 'f', -1, 64),
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes txs to path, creating or truncating it.
func WriteCSVFile(path string, txs []models.Transaction) error {
	f, err := os.Create(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, txs); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
