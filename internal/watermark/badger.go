// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerKey = "ingest:transactions:watermark"

// badgerRecord is the JSON value stored under badgerKey.
type badgerRecord struct {
	Watermark string    `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BadgerStore persists the watermark in BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerStore creates a store on an open BadgerDB instance.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// OpenBadger opens (or creates) a BadgerDB directory for watermark storage.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return db, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var rec badgerRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("load watermark: %w", err)
	}
	if !found {
		return DefaultEpoch, nil
	}
	return Parse(rec.Watermark)
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(badgerRecord{Watermark: Format(ts), UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKey), data)
	})
}
