// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/metrics"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment/clustering"
)

// Result is the outcome of a training run.
type Result struct {
	// Candidates holds every candidate in enumeration order.
	Candidates []CandidateResult
	Winner     CandidateResult

	Scaler   *clustering.StandardScaler
	Artifact *ModelArtifact

	Customers []models.LabeledCustomer
	LabelMap  map[int]string
	Profiles  []models.ClusterProfile

	// Registry versions, 0 when no registry is configured.
	ModelVersion  int
	ScalerVersion int
}

// Trainer selects and persists the production segmentation model.
type Trainer struct {
	cfg      Config
	registry registry.Registry
	logger   zerolog.Logger
	fit      fitFunc
}

// NewTrainer creates a trainer. reg may be nil, in which case nothing is persisted.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewTrainer(cfg Config, reg registry.Registry, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:      cfg,
		registry: reg,
		logger:   logger.With().Str("component", "segmentation").Logger(),
		fit:      defaultFit(cfg),
	}
}

// Train fits every candidate on features, selects the winner, labels the
// training customers and registers the scaler and model as production.
func (t *Trainer) Train(ctx context.Context, features []models.CustomerFeatures) (*Result, error) {
	log := logging.WithContext(ctx, t.logger)

	fs := models.SegmentationFeatureSet()
	x, err := Matrix(features, fs)
	if err != nil {
		return nil, err
	}
	scaler, err := clustering.FitScaler(x, fs)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	xs, err := scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}

	candidates := Enumerate(t.cfg)
	log.Info().
		Int("customers", len(features)).
		Int("candidates", len(candidates)).
		Int("workers", t.cfg.workers()).
		Msg("Fitting segmentation candidates")

	results := fitCandidates(ctx, xs, candidates, t.cfg.workers(), t.fit)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		r := &results[i]
		metrics.RecordCandidate(string(r.Family), r.K, r.Score, r.Err)
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("family", string(r.Family)).Int("k", r.K).Msg("Segmentation candidate failed, skipping")
			continue
		}
		log.Debug().Str("family", string(r.Family)).Int("k", r.K).Float64("score", r.Score).Msg("Segmentation candidate scored")
	}

	idx, err := selectWinner(results)
	if err != nil {
		return nil, err
	}
	winner := &results[idx]
	log.Info().
		Str("family", string(winner.Family)).
		Int("k", winner.K).
		Float64("score", winner.Score).
		Msg("Selected segmentation model")

	segmented := make([]models.SegmentedCustomer, len(features))
	for i := range features {
		segmented[i] = models.SegmentedCustomer{Features: features[i], Cluster: winner.labels[i]}
	}
	labeled, labelMap, profiles := LabelAll(segmented, winner.K)

	artifact, err := newArtifact(winner, fs, labelMap)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Candidates: results,
		Winner:     *winner,
		Scaler:     scaler,
		Artifact:   artifact,
		Customers:  labeled,
		LabelMap:   labelMap,
		Profiles:   profiles,
	}
	if err := t.persist(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// persist registers and promotes the scaler, then the model referencing it.
func (t *Trainer) persist(ctx context.Context, res *Result) error {
	if t.registry == nil {
		return nil
	}
	runID := logging.RunIDFromContext(ctx)
	fsVersion := strconv.Itoa(res.Artifact.FeatureSet.Version)

	scalerVersion, err := t.registry.Register(ctx, registry.ModelScaler, res.Scaler, registry.Metadata{
		Kind:  "standard_scaler",
		RunID: runID,
		Tags:  map[string]string{"feature_set_version": fsVersion},
	})
	if err != nil {
		return fmt.Errorf("register scaler: %w", err)
	}
	if err := t.registry.Promote(ctx, registry.ModelScaler, scalerVersion, registry.StageProduction); err != nil {
		return fmt.Errorf("promote scaler: %w", err)
	}
	res.ScalerVersion = scalerVersion
	res.Artifact.ScalerVersion = scalerVersion

	modelVersion, err := t.registry.Register(ctx, registry.ModelSegmentation, res.Artifact, registry.Metadata{
		Kind:  string(res.Artifact.Family),
		RunID: runID,
		Params: map[string]float64{
			"k":          float64(res.Artifact.K),
			"silhouette": res.Artifact.Score,
		},
		Tags: map[string]string{
			"feature_set_version": fsVersion,
			"scaler_version":      strconv.Itoa(scalerVersion),
		},
	})
	if err != nil {
		return fmt.Errorf("register segmentation model: %w", err)
	}
	if err := t.registry.Promote(ctx, registry.ModelSegmentation, modelVersion, registry.StageProduction); err != nil {
		return fmt.Errorf("promote segmentation model: %w", err)
	}
	res.ModelVersion = modelVersion

	logging.WithContext(ctx, t.logger).Info().
		Int("model_version", modelVersion).
		Int("scaler_version", scalerVersion).
		Msg("Registered segmentation model")
	return nil
}
