// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment"
	"github.com/tomtom215/lodestar/internal/segment/clustering"
)

// Loader loads and caches the production Handle.
type Loader struct {
	registry    registry.Registry
	horizonDays int
	logger      zerolog.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewLoader creates a loader reading from reg.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLoader(reg registry.Registry, horizonDays int, logger zerolog.Logger) *Loader {
	if horizonDays <= 0 {
		horizonDays = probabilistic.DefaultConfig().HorizonDays
	}
	return &Loader{
		registry:    reg,
		horizonDays: horizonDays,
		logger:      logger.With().Str("component", "inference").Logger(),
	}
}

// Production returns the cached handle, loading it on first use.
func (l *Loader) Production(ctx context.Context) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		return l.handle, nil
	}
	h, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.handle = h
	return h, nil
}

// Reload loads the current production models and replaces the cached
// handle. On failure the previous handle is kept.
func (l *Loader) Reload(ctx context.Context) (*Handle, error) {
	h, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.handle = h
	l.mu.Unlock()
	return h, nil
}

// Cached returns the cached handle without loading, or nil.
func (l *Loader) Cached() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

func (l *Loader) load(ctx context.Context) (*Handle, error) {
	var versions Versions

	var bg probabilistic.BGNBD
	meta, err := l.registry.LoadStage(ctx, registry.ModelBGNBD, registry.StageProduction, &bg)
	if err != nil {
		return nil, fmt.Errorf("load purchase model: %w", err)
	}
	versions.BGNBD = meta.Version

	var gg *probabilistic.GammaGamma
	var ggModel probabilistic.GammaGamma
	meta, err = l.registry.LoadStage(ctx, registry.ModelGammaGamma, registry.StageProduction, &ggModel)
	switch {
	case err == nil:
		gg = &ggModel
		versions.GammaGamma = meta.Version
	case errors.Is(err, registry.ErrModelNotFound):
		l.logger.Warn().Msg("No production spend model, using observed averages")
	default:
		return nil, fmt.Errorf("load spend model: %w", err)
	}

	var artifact segment.ModelArtifact
	meta, err = l.registry.LoadStage(ctx, registry.ModelSegmentation, registry.StageProduction, &artifact)
	if err != nil {
		return nil, fmt.Errorf("load segmentation model: %w", err)
	}
	versions.Segmentation = meta.Version

	// The scaler is loaded by the version recorded at training time, not
	// by its own stage pointer.
	var scaler clustering.StandardScaler
	meta, err = l.registry.Load(ctx, registry.ModelScaler, artifact.ScalerVersion, &scaler)
	if err != nil {
		return nil, fmt.Errorf("load scaler v%d: %w", artifact.ScalerVersion, err)
	}
	versions.Scaler = meta.Version

	predictor, err := segment.NewPredictor(&scaler, &artifact)
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx, l.logger).Info().
		Int("bgnbd_version", versions.BGNBD).
		Int("gamma_gamma_version", versions.GammaGamma).
		Int("segmentation_version", versions.Segmentation).
		Int("scaler_version", versions.Scaler).
		Str("family", string(artifact.Family)).
		Int("k", artifact.K).
		Msg("Loaded production models")

	return NewHandle(&bg, gg, predictor, l.horizonDays, versions), nil
}
