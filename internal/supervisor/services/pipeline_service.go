// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/pipeline"
)

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// PipelineServiceConfig schedules pipeline runs.
type PipelineServiceConfig struct {
	// RunOnStartup triggers a run as soon as the service starts.
	RunOnStartup bool

	// Interval between scheduled runs. Default: 24h
	Interval time.Duration
}

// PipelineService runs the pipeline on a schedule under supervision.
type PipelineService struct {
	runner PipelineRunner
	config PipelineServiceConfig
	logger zerolog.Logger
	name   string
}

// NewPipelineService creates the service.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewPipelineService(runner PipelineRunner, cfg PipelineServiceConfig, logger zerolog.Logger) *PipelineService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &PipelineService{
		runner: runner,
		config: cfg,
		logger: logger.With().Str("service", "pipeline").Logger(),
		name:   "pipeline-service",
	}
}

// Serve implements suture.Service.
func (s *PipelineService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("pipeline service starting")

	if s.config.RunOnStartup {
		s.run(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("pipeline service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx, "schedule")
		}
	}
}

func (s *PipelineService) run(ctx context.Context, trigger string) {
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Debug().Str("trigger", trigger).Msg("pipeline run already in progress")
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("pipeline run failed (will retry on schedule)")
	case res != nil:
		s.logger.Info().
			Str("trigger", trigger).
			Str("run_id", res.RunID).
			Str("status", string(res.Status)).
			Msg("pipeline run finished")
	}
}

// String returns the service name for logging.
func (s *PipelineService) String() string {
	return s.name
}
