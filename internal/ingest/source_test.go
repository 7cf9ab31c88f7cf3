// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestReadCSV(t *testing.T) {
	input := "Amount,CustomerID,TransactionDate,Quantity,UnitPrice,Extra\n" +
		"30.5,C1,2023-03-04 10:00:00,2,15.25,x\n" +
		"9.99,C2,2023-03-05T08:30:00Z,1,9.99,y\n"

	txs, err := ReadCSV(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].CustomerID != "C1" || txs[0].Quantity != 2 || txs[0].UnitPrice != 15.25 || txs[0].Amount != 30.5 {
		t.Errorf("txs[0] = %+v", txs[0])
	}
	if want := time.Date(2023, 3, 4, 10, 0, 0, 0, time.UTC); !txs[0].TransactionDate.Equal(want) {
		t.Errorf("txs[0].TransactionDate = %v, want %v", txs[0].TransactionDate, want)
	}
	if want := time.Date(2023, 3, 5, 8, 30, 0, 0, time.UTC); !txs[1].TransactionDate.Equal(want) {
		t.Errorf("txs[1].TransactionDate = %v, want %v", txs[1].TransactionDate, want)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "CustomerID,TransactionDate,Quantity,UnitPrice\nC1,2023-01-01,1,2\n"},
		{"bad timestamp", "CustomerID,TransactionDate,Quantity,UnitPrice,Amount\nC1,soon,1,2,2\n"},
		{"fractional quantity", "CustomerID,TransactionDate,Quantity,UnitPrice,Amount\nC1,2023-01-01,1.5,2,3\n"},
		{"bad amount", "CustomerID,TransactionDate,Quantity,UnitPrice,Amount\nC1,2023-01-01,1,2,two\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.input))
			if !errors.Is(err, ErrMalformedSource) {
				t.Errorf("ReadCSV() error = %v, want ErrMalformedSource", err)
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	txs, err := GenerateSynthetic(SyntheticConfig{Customers: 5, Transactions: 25, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "raw.csv")
	if err := WriteCSVFile(path, txs); err != nil {
		t.Fatalf("WriteCSVFile() error = %v", err)
	}
	got, err := NewCSVSource(path).ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != len(txs) {
		t.Fatalf("len = %d, want %d", len(got), len(txs))
	}
	for i := range txs {
		g, w := got[i], txs[i]
		if g.CustomerID != w.CustomerID || !g.TransactionDate.Equal(w.TransactionDate) ||
			g.Quantity != w.Quantity || g.UnitPrice != w.UnitPrice || g.Amount != w.Amount {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestCSVSource_Missing(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv")).ReadAll(context.Background())
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("ReadAll() error = %v, want ErrSourceNotFound", err)
	}
}

func TestDuckDBSource(t *testing.T) {
	txs, _ := GenerateSynthetic(SyntheticConfig{Customers: 3, Transactions: 10, Seed: 3})
	path := filepath.Join(t.TempDir(), "raw.csv")
	if err := WriteCSVFile(path, txs); err != nil {
		t.Fatal(err)
	}

	got, err := NewDuckDBSource(path).ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != len(txs) {
		t.Fatalf("len = %d, want %d", len(got), len(txs))
	}
	for i := range txs {
		if got[i].CustomerID != txs[i].CustomerID || !got[i].TransactionDate.Equal(txs[i].TransactionDate) || got[i].Amount != txs[i].Amount {
			t.Errorf("row %d = %+v, want %+v", i, got[i], txs[i])
		}
	}

	if _, err := NewDuckDBSource(filepath.Join(t.TempDir(), "nope.csv")).ReadAll(context.Background()); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("missing file error = %v, want ErrSourceNotFound", err)
	}
}

func TestGenerateSynthetic(t *testing.T) {
	a, err := GenerateSynthetic(DefaultSyntheticConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateSynthetic(DefaultSyntheticConfig())
	if !reflect.DeepEqual(a, b) {
		t.Error("GenerateSynthetic() is not reproducible for a fixed seed")
	}
	if len(a) != 20000 {
		t.Errorf("len = %d, want 20000", len(a))
	}

	start := DefaultSyntheticConfig().Start
	end := start.AddDate(0, 0, 690)
	ids := map[string]bool{}
	for _, tx := range a {
		ids[tx.CustomerID] = true
		if tx.Quantity < 1 || tx.Quantity > 9 {
			t.Fatalf("Quantity %d out of range", tx.Quantity)
		}
		if tx.UnitPrice < 5 || tx.UnitPrice > 150 {
			t.Fatalf("UnitPrice %v out of range", tx.UnitPrice)
		}
		if tx.TransactionDate.Before(start) || !tx.TransactionDate.Before(end) {
			t.Fatalf("TransactionDate %v out of range", tx.TransactionDate)
		}
	}
	if len(ids) > 500 {
		t.Errorf("distinct customers = %d, want <= 500", len(ids))
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, a[:1]); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "CustomerID,TransactionDate,Quantity,UnitPrice,Amount\n") {
		t.Errorf("header = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
}

func TestGenerateSyntheticPassesDefaultSuite(t *testing.T) {
	txs, _ := GenerateSynthetic(SyntheticConfig{Transactions: 2000, Seed: 11})
	res := newTestSuite().Validate(txs)
	if !res.Success {
		t.Errorf("synthetic data failed validation: %s", res.Summary())
	}
}
