// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/inference"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/pipeline"
)

// Config controls request limits.
type Config struct {
	// RateLimitRequests per RateLimitWindow per client IP. 0 disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// MaxBatchSize caps customer_ids in one prediction request.
	MaxBatchSize int
	// CacheSize and CacheTTL bound the per-customer CLV prediction cache.
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		MaxBatchSize:      1000,
		CacheSize:         10000,
		CacheTTL:          10 * time.Minute,
	}
}

// FeatureReader reads the processed feature table and the purchase
// summaries stored with it.
type FeatureReader interface {
	Get(ctx context.Context, id string) (models.CustomerFeatures, error)
	GetMany(ctx context.Context, ids []string) ([]models.CustomerFeatures, error)
	GetSummaries(ctx context.Context, ids []string) (map[string]models.PurchaseSummary, error)
	Ping(ctx context.Context) error
}

// ModelProvider returns the production model handle.
type ModelProvider interface {
	Production(ctx context.Context) (*inference.Handle, error)
	Cached() *inference.Handle
}

// StatusReporter reports pipeline state.
type StatusReporter interface {
	Status() (running bool, last *pipeline.RunResult)
}

// Deps are the collaborators of the API. Status may be nil.
type Deps struct {
	Store  FeatureReader
	Models ModelProvider
	Status StatusReporter
}

// NewRouter builds the HTTP handler.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRouter(cfg Config, deps Deps, logger zerolog.Logger) http.Handler {
	h := NewHandler(cfg, deps, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(h.rateLimited),
			))
		}
		r.Get("/health", h.Health)
		r.Get("/customers/{id}", h.Customer)
		r.Post("/predict/clv", h.PredictCLV)
		r.Post("/predict/segment", h.PredictSegment)
	})
	return r
}
