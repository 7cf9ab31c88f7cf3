// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package database

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/models"
)

func setupTestStore(t *testing.T, cfg Config) *FeatureStore {
	t.Helper()
	store, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRows() []models.CustomerFeatures {
	return []models.CustomerFeatures{
		{CustomerID: "C1001", Recency: 4, Frequency: 3, MonetaryValue: 30, CustomerTenure: 40, AvgOrderValue: 10,
			UniqueProducts: 1, AvgInterpurchaseTime: 18, CLV90Days: 100,
			PredictedPurchases90d: 1.5, ExpectedMonetaryValue: 12, ProbabilisticCLV90d: 18},
		{CustomerID: "C1000", Recency: 10, Frequency: 1, MonetaryValue: 25, CustomerTenure: 10, AvgOrderValue: 25,
			UniqueProducts: 1},
	}
}

func sampleSummaries() []models.PurchaseSummary {
	return []models.PurchaseSummary{
		{CustomerID: "C1001", Frequency: 2, Recency: 36, T: 40, MonetaryValue: 10, ObservedAverage: 10},
		{CustomerID: "C1000", T: 10, ObservedAverage: 25},
	}
}

func TestFeatureStore_ReplaceAndGet(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	rows := sampleRows()

	if err := store.Replace(ctx, rows, sampleSummaries()); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := store.Get(ctx, "C1001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != rows[0] {
		t.Errorf("Get() = %+v, want %+v", got, rows[0])
	}

	n, err := store.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, want 2", n, err)
	}
}

func TestFeatureStore_GetUnknown(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	if err := store.Replace(context.Background(), sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	_, err := store.Get(context.Background(), "C9999")
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Errorf("Get() error = %v, want ErrCustomerNotFound", err)
	}
}

func TestFeatureStore_GetMany(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := store.GetMany(ctx, []string{"C1001", "C1000", "C1001"})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 || got[0].CustomerID != "C1001" || got[1].CustomerID != "C1000" {
		t.Errorf("GetMany() = %v, want C1001, C1000", got)
	}

	_, err = store.GetMany(ctx, []string{"C1000", "X1", "X2"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("GetMany() error = %v, want *NotFoundError", err)
	}
	if len(nf.IDs) != 2 || nf.IDs[0] != "X1" || nf.IDs[1] != "X2" {
		t.Errorf("NotFoundError.IDs = %v, want [X1 X2]", nf.IDs)
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Error("NotFoundError should match ErrCustomerNotFound")
	}
}

func TestFeatureStore_ReplaceDropsPreviousRows(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := store.Replace(ctx, sampleRows()[1:], nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 || all[0].CustomerID != "C1000" {
		t.Errorf("All() = %v, want only C1000", all)
	}
}

func TestFeatureStore_ReplaceRejectsDuplicateIDs(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	dup := []models.CustomerFeatures{{CustomerID: "C2000"}, {CustomerID: "C2000"}}
	if err := store.Replace(ctx, dup, nil); err == nil {
		t.Fatal("Replace() with duplicate ids error = nil, want error")
	}

	// The rejected replace leaves the table untouched.
	n, err := store.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() after rejected replace = %d, %v, want 2", n, err)
	}
}

func TestFeatureStore_Summaries(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	want := sampleSummaries()
	if err := store.Replace(ctx, sampleRows(), want); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := store.GetSummaries(ctx, []string{"C1001", "C1000", "X1"})
	if err != nil {
		t.Fatalf("GetSummaries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetSummaries() returned %d summaries, want 2", len(got))
	}
	for _, w := range want {
		if got[w.CustomerID] != w {
			t.Errorf("summary %s = %+v, want %+v", w.CustomerID, got[w.CustomerID], w)
		}
	}

	// A replace without summaries clears the old ones.
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got, err = store.GetSummaries(ctx, []string{"C1001"})
	if err != nil || len(got) != 0 {
		t.Errorf("GetSummaries() after replace = %v, %v, want empty", got, err)
	}
}

func TestFeatureStore_ReplaceRejectsOrphanSummaries(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name      string
		summaries []models.PurchaseSummary
	}{
		{"unknown customer", []models.PurchaseSummary{{CustomerID: "C9999"}}},
		{"duplicate customer", []models.PurchaseSummary{{CustomerID: "C1000"}, {CustomerID: "C1000"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Replace(ctx, sampleRows(), tt.summaries); err == nil {
				t.Error("Replace() error = nil, want error")
			}
		})
	}
}

func TestFeatureStore_ExportCSV(t *testing.T) {
	store := setupTestStore(t, DefaultConfig())
	ctx := context.Background()
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "processed", "customer_features.csv")
	if err := store.ExportCSV(ctx, out); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("export rows = %d, want 3 (header + 2)", len(records))
	}
	for i, col := range models.FeatureColumns {
		if records[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][0] != "C1000" || records[2][0] != "C1001" {
		t.Errorf("export order = %s, %s, want C1000, C1001", records[1][0], records[2][0])
	}
}

func TestFeatureStore_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "db", "lodestar.duckdb")
	ctx := context.Background()

	store, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Replace(ctx, sampleRows(), nil); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := setupTestStore(t, cfg)
	n, err := reopened.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() after reopen = %d, %v, want 2", n, err)
	}
}

func TestFeatureStore_MigrationsApplyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "lodestar.duckdb")
	ctx := context.Background()

	store, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := setupTestStore(t, cfg)
	version, err := reopened.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != len(migrations) {
		t.Errorf("SchemaVersion() = %d, want %d", version, len(migrations))
	}
	history, err := reopened.MigrationHistory(ctx)
	if err != nil {
		t.Fatalf("MigrationHistory() error = %v", err)
	}
	if len(history) != len(migrations) || history[0].Name != "create_customer_features" {
		t.Errorf("MigrationHistory() = %+v", history)
	}
	if history[0].AppliedAt.IsZero() {
		t.Error("AppliedAt is zero")
	}
}
