// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package watermark persists the timestamp of the last successfully ingested
// transaction so that incremental loads resume where the previous run stopped.
//
// Three backends are provided:
//
//   - FileStore: a single ISO-8601 timestamp in a text file, fully overwritten on update
//   - BadgerStore: a JSON value under a fixed key in BadgerDB
//   - MemoryStore: process-local, for tests and dry runs
//
// All backends return DefaultEpoch when nothing has been persisted yet, so a
// first run treats the whole transaction log as new.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultEpoch is the watermark used before any increment has been accepted.
var DefaultEpoch = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidWatermark is returned when a persisted watermark cannot be parsed.
var ErrInvalidWatermark = errors.New("invalid watermark")

// Store reads and writes the ingestion watermark.
type Store interface {
	// Get returns the persisted watermark, or DefaultEpoch if none exists.
	Get(ctx context.Context) (time.Time, error)

	// Set replaces the persisted watermark.
	Set(ctx context.Context, ts time.Time) error
}

// Layouts accepted when parsing a persisted watermark. Naive timestamps are UTC.
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse parses an ISO-8601 watermark string.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWatermark, s)
}

// Format renders ts as the canonical persisted form (RFC 3339, UTC).
func Format(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// MemoryStore keeps the watermark in memory.
type MemoryStore struct {
	mu sync.RWMutex
	ts time.Time
	ok bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ok {
		return DefaultEpoch, nil
	}
	return m.ts, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ts = ts.UTC()
	m.ok = true
	return nil
}
