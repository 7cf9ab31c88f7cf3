// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/features"
	"github.com/tomtom215/lodestar/internal/inference"
	"github.com/tomtom215/lodestar/internal/ingest"
	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/metrics"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment"
)

// ErrRunInProgress is returned when Run is called while another run is executing.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Status is the outcome of a run.
type Status string

// Run outcomes.
const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Stage names used in logs and metrics.
const (
	StageIngest        = "ingest"
	StageFeatures      = "features"
	StageProbabilistic = "probabilistic"
	StageSegmentation  = "segmentation"
	StageStore         = "store"
)

// Config controls a Runner.
type Config struct {
	// HorizonDays is the target window length of the feature builder.
	HorizonDays int `koanf:"horizon_days"`

	// Force retrains on the existing history when there is no new data.
	Force bool `koanf:"force"`

	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration `koanf:"timeout"`

	// ExportPath, if set, receives a CSV copy of the processed feature table.
	ExportPath string `koanf:"export_path"`

	// KeepModelVersions prunes older registry versions after a successful
	// run. Zero keeps everything.
	KeepModelVersions int `koanf:"keep_model_versions"`
}

// DefaultConfig returns a 90 day horizon and a one hour timeout.
func DefaultConfig() Config {
	return Config{
		HorizonDays:       90,
		Timeout:           time.Hour,
		KeepModelVersions: 10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HorizonDays <= 0 {
		return fmt.Errorf("pipeline.horizon_days must be positive, got %d", c.HorizonDays)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("pipeline.timeout must be >= 0, got %s", c.Timeout)
	}
	if c.KeepModelVersions < 0 {
		return fmt.Errorf("pipeline.keep_model_versions must be >= 0, got %d", c.KeepModelVersions)
	}
	return nil
}

// IncrementLoader is satisfied by *ingest.Loader.
type IncrementLoader interface {
	LoadNew(ctx context.Context) (*ingest.Increment, error)
	History(ctx context.Context) ([]models.Transaction, error)
}

// Estimator is satisfied by *probabilistic.Estimator.
type Estimator interface {
	Estimate(ctx context.Context, txs []models.Transaction, cutoff time.Time) (*probabilistic.Result, error)
}

// Trainer is satisfied by *segment.Trainer.
type Trainer interface {
	Train(ctx context.Context, features []models.CustomerFeatures) (*segment.Result, error)
}

// FeatureWriter is satisfied by *database.FeatureStore.
type FeatureWriter interface {
	Replace(ctx context.Context, rows []models.CustomerFeatures, summaries []models.PurchaseSummary) error
	ExportCSV(ctx context.Context, outputPath string) error
}

// Pruner is satisfied by *registry.FileRegistry.
type Pruner interface {
	Prune(ctx context.Context, name string, keep int) (int, error)
}

// ModelReloader is satisfied by *inference.Loader.
type ModelReloader interface {
	Reload(ctx context.Context) (*inference.Handle, error)
}

// Deps are the collaborators of a Runner. Store, Pruner, Models and Clock
// are optional.
type Deps struct {
	Loader    IncrementLoader
	Estimator Estimator
	Trainer   Trainer
	Store     FeatureWriter
	Pruner    Pruner
	Models    ModelReloader

	// Clock, if set, is frozen at StartedAt for the duration of each run.
	// The loader's validation suite should read the same clock.
	Clock *RunClock
}

// RunResult describes one run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`

	NewTransactions     int       `json:"new_transactions"`
	HistoryTransactions int       `json:"history_transactions"`
	Watermark           time.Time `json:"watermark"`
	Cutoff              time.Time `json:"cutoff"`

	Customers       int `json:"customers"`
	RepeatCustomers int `json:"repeat_customers"`

	Winner   string                  `json:"winner,omitempty"`
	Score    float64                 `json:"score"`
	LabelMap map[int]string          `json:"label_map,omitempty"`
	Profiles []models.ClusterProfile `json:"profiles,omitempty"`

	BGNBDVersion        int `json:"bgnbd_version"`
	GammaGammaVersion   int `json:"gamma_gamma_version"`
	SegmentationVersion int `json:"segmentation_version"`
	ScalerVersion       int `json:"scaler_version"`

	// Features is the processed feature table of the run. Not serialised.
	Features []models.CustomerFeatures `json:"-"`
}

// Runner executes pipeline runs.
type Runner struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	runMu sync.Mutex

	statusMu sync.RWMutex
	running  bool
	last     *RunResult
}

// NewRunner creates a runner.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRunner(cfg Config, deps Deps, logger zerolog.Logger) *Runner {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultConfig().HorizonDays
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Status reports whether a run is executing and the last finished run.
func (r *Runner) Status() (running bool, last *RunResult) {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.running, r.last
}

// Run executes one pipeline run. A skipped run returns a nil error.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if !r.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.runMu.Unlock()

	res := &RunResult{
		RunID:     logging.GenerateRunID(),
		StartedAt: time.Now().UTC(),
	}
	if r.deps.Clock != nil {
		r.deps.Clock.freeze(res.StartedAt)
		defer r.deps.Clock.release()
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	log := logging.WithContext(ctx, r.logger)

	r.setRunning(true, nil)
	err := r.run(ctx, res)
	res.FinishedAt = time.Now().UTC()
	duration := res.FinishedAt.Sub(res.StartedAt)

	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Error().Err(err).Dur("duration", duration).Msg("Pipeline run failed")
	case res.Status == StatusSkipped:
		log.Info().Time("watermark", res.Watermark).Msg("No new transactions, run skipped")
	default:
		res.Status = StatusSucceeded
		log.Info().
			Int("customers", res.Customers).
			Str("winner", res.Winner).
			Float64("score", res.Score).
			Dur("duration", duration).
			Msg("Pipeline run succeeded")
	}
	metrics.RecordRun(string(res.Status), duration)
	r.setRunning(false, res)
	return res, err
}

func (r *Runner) setRunning(running bool, last *RunResult) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.running = running
	if last != nil {
		r.last = last
	}
}

// stage times fn and records it under name.
func (r *Runner) stage(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStage(name, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logging.WithContext(ctx, r.logger).Debug().
		Str("stage", name).
		Dur("duration", time.Since(start)).
		Msg("Stage complete")
	return ctx.Err()
}

func (r *Runner) run(ctx context.Context, res *RunResult) error {
	log := logging.WithContext(ctx, r.logger)

	var history []models.Transaction
	err := r.stage(ctx, StageIngest, func() error {
		inc, err := r.deps.Loader.LoadNew(ctx)
		if inc != nil {
			res.Watermark = inc.Watermark
		}
		switch {
		case errors.Is(err, ingest.ErrNoNewData):
			if !r.cfg.Force {
				res.Status = StatusSkipped
				return nil
			}
			log.Info().Msg("No new transactions, retraining on existing history")
			history, err = r.deps.Loader.History(ctx)
			return err
		case err != nil:
			return err
		}
		res.NewTransactions = len(inc.Transactions)
		history = inc.History
		return nil
	})
	if err != nil || res.Status == StatusSkipped {
		return err
	}
	res.HistoryTransactions = len(history)

	var built *features.Result
	err = r.stage(ctx, StageFeatures, func() error {
		built, err = features.Build(history, features.Options{
			Horizon: time.Duration(r.cfg.HorizonDays) * 24 * time.Hour,
			Mode:    features.ModeTraining,
		})
		return err
	})
	if err != nil {
		return err
	}
	res.Cutoff = built.Cutoff

	var prob *probabilistic.Result
	err = r.stage(ctx, StageProbabilistic, func() error {
		prob, err = r.deps.Estimator.Estimate(ctx, history, built.Cutoff)
		return err
	})
	if err != nil {
		return err
	}
	res.RepeatCustomers = prob.RepeatCustomers
	res.BGNBDVersion = prob.BGNBDVersion
	res.GammaGammaVersion = prob.GammaGammaVersion

	merged := probabilistic.Merge(built.Features, prob.Features)
	res.Features = merged
	res.Customers = len(merged)

	var seg *segment.Result
	err = r.stage(ctx, StageSegmentation, func() error {
		seg, err = r.deps.Trainer.Train(ctx, merged)
		return err
	})
	if err != nil {
		return err
	}
	res.Winner = seg.Winner.String()
	res.Score = seg.Winner.Score
	res.LabelMap = seg.LabelMap
	res.Profiles = seg.Profiles
	res.SegmentationVersion = seg.ModelVersion
	res.ScalerVersion = seg.ScalerVersion

	if r.deps.Store != nil {
		err = r.stage(ctx, StageStore, func() error {
			if err := r.deps.Store.Replace(ctx, merged, prob.Summaries); err != nil {
				return err
			}
			if r.cfg.ExportPath != "" {
				return r.deps.Store.ExportCSV(ctx, r.cfg.ExportPath)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	r.prune(ctx)
	if r.deps.Models != nil {
		if _, err := r.deps.Models.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to reload production models")
		}
	}
	return nil
}

// prune drops old registry versions. Failures are logged only.
func (r *Runner) prune(ctx context.Context) {
	if r.deps.Pruner == nil || r.cfg.KeepModelVersions <= 0 {
		return
	}
	log := logging.WithContext(ctx, r.logger)
	for _, name := range []string{
		registry.ModelBGNBD, registry.ModelGammaGamma, registry.ModelSegmentation, registry.ModelScaler,
	} {
		n, err := r.deps.Pruner.Prune(ctx, name, r.cfg.KeepModelVersions)
		if err != nil {
			log.Warn().Err(err).Str("model", name).Msg("Failed to prune model versions")
			continue
		}
		if n > 0 {
			log.Info().Str("model", name).Int("removed", n).Msg("Pruned model versions")
		}
	}
}
