// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package main

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/config"
	"github.com/tomtom215/lodestar/internal/database"
	"github.com/tomtom215/lodestar/internal/inference"
	"github.com/tomtom215/lodestar/internal/ingest"
	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/pipeline"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment"
	"github.com/tomtom215/lodestar/internal/validation"
	"github.com/tomtom215/lodestar/internal/watermark"
)

// app holds the wired components of one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  *pipeline.RunClock

	badgerDB   *badger.DB
	watermarks watermark.Store
	loader     *ingest.Loader
	store      *database.FeatureStore
	files      *registry.FileRegistry
	registry   *registry.Guarded
	models     *inference.Loader
	runner     *pipeline.Runner
}

// newWatermarkStore opens the configured watermark backend. The returned
// badger handle is nil for the file backend.
func newWatermarkStore(cfg *config.Config) (watermark.Store, *badger.DB, error) {
	switch cfg.Data.WatermarkBackend {
	case "badger":
		db, err := watermark.OpenBadger(cfg.Data.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return watermark.NewBadgerStore(db), db, nil
	default:
		return watermark.NewFileStore(cfg.Data.WatermarkPath), nil, nil
	}
}

func newSource(cfg *config.Config) ingest.Source {
	if cfg.Data.Reader == "duckdb" {
		return ingest.NewDuckDBSource(cfg.Data.RawPath)
	}
	return ingest.NewCSVSource(cfg.Data.RawPath)
}

// newIngestOnly wires the watermark store and incremental loader.
func newIngestOnly(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.Logger(), clock: pipeline.NewRunClock()}
	store, db, err := newWatermarkStore(cfg)
	if err != nil {
		return nil, err
	}
	a.watermarks, a.badgerDB = store, db
	a.loader = ingest.NewLoader(newSource(cfg), store, validation.NewSuiteWithClock(cfg.Validation, a.clock.Now), a.logger)
	return a, nil
}

// newApp wires every component of the pipeline and the serving path.
func newApp(cfg *config.Config) (*app, error) {
	a, err := newIngestOnly(cfg)
	if err != nil {
		return nil, err
	}

	a.store, err = database.New(cfg.Data.Database, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open feature store: %w", err)
	}

	a.files, err = registry.NewFileRegistry(cfg.Registry.Dir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open model registry: %w", err)
	}
	a.registry = registry.NewGuarded(a.files, cfg.Registry.Guard)
	a.models = inference.NewLoader(a.registry, cfg.Features.HorizonDays, a.logger)

	a.runner = pipeline.NewRunner(cfg.RunnerConfig(), pipeline.Deps{
		Loader:    a.loader,
		Estimator: probabilistic.NewEstimator(cfg.Probabilistic, a.registry, a.logger),
		Trainer:   segment.NewTrainer(cfg.Segmentation, a.registry, a.logger),
		Store:     a.store,
		Pruner:    a.files,
		Models:    a.models,
		Clock:     a.clock,
	}, a.logger)
	return a, nil
}

// Close releases the feature store and the badger database.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.badgerDB != nil {
		errs = append(errs, a.badgerDB.Close())
	}
	return errors.Join(errs...)
}
