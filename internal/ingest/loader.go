// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/metrics"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/validation"
	"github.com/tomtom215/lodestar/internal/watermark"
)

// ErrNoNewData is returned by LoadNew when no transaction is newer than the watermark.
var ErrNoNewData = errors.New("no new data")

// ErrValidationFailed matches every *ValidationFailedError via errors.Is.
var ErrValidationFailed = errors.New("increment failed validation")

// ValidationFailedError reports a rejected increment. The watermark was not advanced.
type ValidationFailedError struct {
	Rows      int
	Watermark time.Time
	Result    *validation.Result
}

// Error implements error.
func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("increment of %d rows after %s rejected: %s",
		e.Rows, watermark.Format(e.Watermark), e.Result.Summary())
}

// Is lets errors.Is match ErrValidationFailed.
func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Validator evaluates a candidate increment.
type Validator interface {
	Validate(batch []models.Transaction) *validation.Result
}

// Increment is the outcome of one incremental load.
type Increment struct {
	// Transactions are the accepted rows strictly after PreviousWatermark,
	// ordered by timestamp then customer id.
	Transactions []models.Transaction

	// History holds every row at or before Watermark: previously accepted
	// rows plus this increment.
	History []models.Transaction

	PreviousWatermark time.Time
	Watermark         time.Time
	Validation        *validation.Result
}

// Loader performs watermark-driven incremental loads.
type Loader struct {
	source    Source
	store     watermark.Store
	validator Validator
	logger    zerolog.Logger
}

// NewLoader creates a loader.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLoader(source Source, store watermark.Store, validator Validator, logger zerolog.Logger) *Loader {
	return &Loader{
		source:    source,
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// LoadNew returns the transactions newer than the persisted watermark.
//
// When there are none it returns ErrNoNewData alongside an Increment whose
// History is the full log. When the increment fails validation it returns a
// *ValidationFailedError and the watermark is left unchanged. Otherwise the
// watermark is advanced to the latest TransactionDate in the increment.
func (l *Loader) LoadNew(ctx context.Context) (*Increment, error) {
	prev, err := l.store.Get(ctx)
	if err != nil {
		metrics.IngestIncrements.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read watermark: %w", err)
	}

	all, err := l.source.ReadAll(ctx)
	if err != nil {
		metrics.IngestIncrements.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	metrics.IngestRowsRead.Add(float64(len(all)))

	fresh, history := SplitAtWatermark(all, prev)
	l.logger.Info().
		Time("watermark", prev).
		Int("rows_read", len(all)).
		Int("rows_new", len(fresh)).
		Msg("Read transaction log")

	inc := &Increment{PreviousWatermark: prev, Watermark: prev, History: history}
	if len(fresh) == 0 {
		metrics.IngestIncrements.WithLabelValues("empty").Inc()
		return inc, ErrNoNewData
	}

	res := l.validator.Validate(fresh)
	inc.Validation = res
	if !res.Success {
		metrics.IngestIncrements.WithLabelValues("rejected").Inc()
		for _, name := range res.FailedExpectations() {
			metrics.ValidationFailures.WithLabelValues(name).Inc()
		}
		l.logger.Error().
			Int("rows", len(fresh)).
			Strs("failed_expectations", res.FailedExpectations()).
			Msg("Increment rejected, watermark unchanged")
		return inc, &ValidationFailedError{Rows: len(fresh), Watermark: prev, Result: res}
	}

	next, _ := models.MaxTransactionDate(fresh)
	if err := l.store.Set(ctx, next); err != nil {
		metrics.IngestIncrements.WithLabelValues("error").Inc()
		return inc, fmt.Errorf("advance watermark: %w", err)
	}
	metrics.SetWatermark(next)
	metrics.IngestRowsAccepted.Add(float64(len(fresh)))
	metrics.IngestIncrements.WithLabelValues("accepted").Inc()

	inc.Transactions = models.SortTransactions(fresh)
	inc.History = append(history, fresh...)
	inc.Watermark = next

	l.logger.Info().
		Int("rows", len(fresh)).
		Time("previous_watermark", prev).
		Time("watermark", next).
		Msg("Increment accepted")
	return inc, nil
}

// History returns every transaction at or before the persisted watermark,
// in log order. Rows after the watermark have not been validated and are
// excluded.
func (l *Loader) History(ctx context.Context) ([]models.Transaction, error) {
	wm, err := l.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	all, err := l.source.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	_, history := SplitAtWatermark(all, wm)
	return history, nil
}

// SplitAtWatermark partitions txs into rows strictly after wm and the rest.
// Both results are new slices in input order.
func SplitAtWatermark(txs []models.Transaction, wm time.Time) (fresh, older []models.Transaction) {
	for i := range txs {
		if txs[i].TransactionDate.After(wm) {
			fresh = append(fresh, txs[i])
		} else {
			older = append(older, txs[i])
		}
	}
	return fresh, older
}
