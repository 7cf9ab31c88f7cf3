// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func writeConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	body := `data:
  raw_path: ` + filepath.Join(dir, "raw", "transactions.csv") + `
  watermark_path: ` + filepath.Join(dir, "watermark.txt") + `
  badger_dir: ` + filepath.Join(dir, "watermark") + `
  processed_path: ` + filepath.Join(dir, "processed", "customer_features.csv") + `
  database:
    path: ` + filepath.Join(dir, "lodestar.duckdb") + `
registry:
  dir: ` + filepath.Join(dir, "models") + `
segmentation:
  k_min: 3
  k_max: 3
logging:
  level: error
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "lodestar dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")

	out, err := execute(t, "--config", cfgPath, "generate", "--customers", "150", "--transactions", "6000")
	if err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if !strings.Contains(out, "wrote 6000 transactions") {
		t.Errorf("generate output = %q", out)
	}

	out, err = execute(t, "--config", cfgPath, "watermark", "get")
	if err != nil {
		t.Fatalf("watermark get error = %v", err)
	}
	if strings.TrimSpace(out) != "2023-01-01T00:00:00Z" {
		t.Errorf("initial watermark = %q, want the default epoch", out)
	}

	out, err = execute(t, "--config", cfgPath, "ingest")
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	var summary ingestSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode ingest output: %v (%s)", err, out)
	}
	if summary.Status != "accepted" || summary.Rows == 0 || !summary.Watermark.After(summary.PreviousWatermark) {
		t.Errorf("ingest summary = %+v", summary)
	}

	out, err = execute(t, "--config", cfgPath, "ingest")
	if err != nil {
		t.Fatalf("second ingest error = %v", err)
	}
	if !strings.Contains(out, `"no_new_data"`) {
		t.Errorf("second ingest output = %s, want no_new_data", out)
	}

	out, err = execute(t, "--config", cfgPath, "run")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, `"skipped"`) {
		t.Errorf("run output = %s, want skipped", out)
	}

	out, err = execute(t, "--config", cfgPath, "run", "--force")
	if err != nil {
		t.Fatalf("run --force error = %v", err)
	}
	var res struct {
		Status   string         `json:"status"`
		LabelMap map[int]string `json:"label_map"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode run output: %v (%s)", err, out)
	}
	if res.Status != "succeeded" || len(res.LabelMap) != 3 {
		t.Errorf("run --force = %+v, want succeeded with 3 labels", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "processed", "customer_features.csv")); err != nil {
		t.Errorf("processed export missing: %v", err)
	}

	if _, err := execute(t, "--config", cfgPath, "watermark", "set", "2023-06-01"); err != nil {
		t.Fatalf("watermark set error = %v", err)
	}
	out, _ = execute(t, "--config", cfgPath, "watermark", "get")
	if strings.TrimSpace(out) != "2023-06-01T00:00:00Z" {
		t.Errorf("watermark after set = %q", out)
	}
}

func TestWatermark_BadgerBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	t.Setenv("LODESTAR_WATERMARK_BACKEND", "badger")

	if _, err := execute(t, "--config", cfgPath, "watermark", "set", "2024-02-03T04:05:06Z"); err != nil {
		t.Fatalf("watermark set error = %v", err)
	}
	out, err := execute(t, "--config", cfgPath, "watermark", "get")
	if err != nil {
		t.Fatalf("watermark get error = %v", err)
	}
	if strings.TrimSpace(out) != "2024-02-03T04:05:06Z" {
		t.Errorf("watermark = %q", out)
	}
}

func TestWatermarkSet_RejectsGarbage(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")
	if _, err := execute(t, "--config", cfgPath, "watermark", "set", "yesterday"); err == nil {
		t.Error("watermark set accepted an invalid timestamp")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "server:\n  port: -1\n")
	if _, err := execute(t, "--config", cfgPath, "watermark", "get"); err == nil {
		t.Error("invalid config accepted")
	}
}
