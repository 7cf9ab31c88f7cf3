// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

// Package registry persists fitted model artifacts.
//
// Every Register call stores a new, immutable version of a named model.
// Versions are promoted to named stages ("production", "staging") and
// serving code loads models by stage rather than by version number.
//
// # Storage Format
//
// FileRegistry writes one gzip-compressed gob file per version,
// {name}_v{version}.gob.gz, carrying Metadata and a SHA-256 checksum of the
// uncompressed payload. Stage pointers live in {name}.stages.json.
//
// # Resilience
//
// Guarded wraps any Registry with a per-call timeout, bounded retries and a
// circuit breaker, so an unavailable registry fails fast instead of stalling
// a pipeline run.
package registry

import (
	"context"
	"errors"
	"time"
)

// Stage names.
const (
	StageProduction = "production"
	StageStaging    = "staging"
)

// Registered model names.
const (
	ModelBGNBD        = "clv_bgnbd"
	ModelGammaGamma   = "clv_gamma_gamma"
	ModelSegmentation = "customer_segmentation"
	ModelScaler       = "customer_segmentation_scaler"
)

var (
	// ErrModelNotFound is returned when a name, version or stage does not resolve.
	ErrModelNotFound = errors.New("model not found")

	// ErrChecksumMismatch is returned when a stored payload fails verification.
	ErrChecksumMismatch = errors.New("model checksum mismatch")

	// ErrInvalidName is returned for model or stage names that are not
	// lowercase letters, digits and underscores.
	ErrInvalidName = errors.New("invalid model name")

	// ErrCircuitOpen is returned by Guarded while the breaker is open.
	ErrCircuitOpen = errors.New("registry circuit open")
)

// Metadata describes one stored model version.
type Metadata struct {
	// Name is the registered model name (e.g., "clv_bgnbd").
	Name string `json:"name"`

	// Version is assigned by Register and increases monotonically per name.
	Version int `json:"version"`

	// Kind identifies the artifact type (e.g., "bgnbd", "kmeans").
	Kind string `json:"kind"`

	// RunID is the pipeline run that produced the model.
	RunID string `json:"run_id,omitempty"`

	TrainedAt time.Time `json:"trained_at"`
	SavedAt   time.Time `json:"saved_at"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`

	// Params holds fitted parameters and scores for display.
	Params map[string]float64 `json:"params,omitempty"`

	// Tags holds free-form string attributes.
	Tags map[string]string `json:"tags,omitempty"`
}

// Registry stores and retrieves versioned model artifacts. Artifacts must be
// gob-encodable; Load and LoadStage decode into target, which must be a
// pointer to the type that was registered.
type Registry interface {
	Register(ctx context.Context, name string, artifact any, meta Metadata) (int, error)
	Load(ctx context.Context, name string, version int, target any) (*Metadata, error)
	LoadStage(ctx context.Context, name, stage string, target any) (*Metadata, error)
	Promote(ctx context.Context, name string, version int, stage string) error
}
