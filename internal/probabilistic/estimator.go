// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package probabilistic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/metrics"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/registry"
)

// Config configures the Estimator.
type Config struct {
	// HorizonDays is the prediction horizon t.
	HorizonDays int `koanf:"horizon_days"`

	// Penalizer is the L2 coefficient for both models.
	Penalizer float64 `koanf:"penalizer"`

	// MaxIterations bounds each optimizer run.
	MaxIterations int `koanf:"max_iterations"`
}

// DefaultConfig returns a 90 day horizon with penalizer 0.001.
func DefaultConfig() Config {
	fit := DefaultFitConfig()
	return Config{
		HorizonDays:   90,
		Penalizer:     fit.Penalizer,
		MaxIterations: fit.MaxIterations,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HorizonDays <= 0 {
		return fmt.Errorf("probabilistic.horizon_days must be positive, got %d", c.HorizonDays)
	}
	if c.Penalizer < 0 {
		return fmt.Errorf("probabilistic.penalizer must be >= 0, got %g", c.Penalizer)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("probabilistic.max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

func (c Config) fit() FitConfig {
	return FitConfig{Penalizer: c.Penalizer, MaxIterations: c.MaxIterations}
}

// PurchaseModel predicts repeat purchases over a horizon.
type PurchaseModel interface {
	ExpectedPurchases(t, x, tx, T float64) (float64, error)
}

// MonetaryModel predicts spend per transaction for repeat customers.
type MonetaryModel interface {
	ConditionalExpectedValue(frequency, monetary float64) (float64, error)
}

// Result is the output of Estimate.
type Result struct {
	Features []models.ProbabilisticFeatures

	// Summaries are the model inputs behind Features, in the same order.
	Summaries []Summary

	BGNBD      *BGNBD
	GammaGamma *GammaGamma

	// Versions assigned by the registry, 0 when registration failed or was skipped.
	BGNBDVersion      int
	GammaGammaVersion int

	Customers       int
	RepeatCustomers int
}

// Estimator fits both models on a training window and scores every customer in it.
type Estimator struct {
	cfg      Config
	registry registry.Registry
	logger   zerolog.Logger
}

// NewEstimator creates an estimator. reg may be nil, in which case fitted
// models are not persisted.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEstimator(cfg Config, reg registry.Registry, logger zerolog.Logger) *Estimator {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultConfig().HorizonDays
	}
	return &Estimator{
		cfg:      cfg,
		registry: reg,
		logger:   logger.With().Str("component", "probabilistic").Logger(),
	}
}

// Estimate fits BG/NBD and Gamma-Gamma on transactions at or before cutoff
// and returns predictions for each customer seen in that window, sorted by
// CustomerID.
//
// If no customer has a repeat purchase the Gamma-Gamma model is not fitted
// and every customer's expected value is their observed average.
func (e *Estimator) Estimate(ctx context.Context, txs []models.Transaction, cutoff time.Time) (*Result, error) {
	log := logging.WithContext(ctx, e.logger)

	summaries := Summarize(txs, cutoff)
	if len(summaries) == 0 {
		return nil, ErrInsufficientData
	}
	repeat := len(RepeatCustomers(summaries))

	start := time.Now()
	bg, err := FitBGNBD(summaries, e.cfg.fit())
	metrics.ModelFitDuration.WithLabelValues("bgnbd").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("customers", len(summaries)).
		Float64("r", bg.Params.R).
		Float64("alpha", bg.Params.Alpha).
		Float64("a", bg.Params.A).
		Float64("b", bg.Params.B).
		Msg("Fitted BG/NBD model")

	var gg *GammaGamma
	var monetary MonetaryModel
	if repeat > 0 {
		start = time.Now()
		gg, err = FitGammaGamma(summaries, e.cfg.fit())
		metrics.ModelFitDuration.WithLabelValues("gamma_gamma").Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		monetary = gg
		log.Info().
			Int("customers", gg.Customers).
			Float64("p", gg.Params.P).
			Float64("q", gg.Params.Q).
			Float64("v", gg.Params.V).
			Msg("Fitted Gamma-Gamma model")
	} else {
		log.Warn().Msg("No repeat customers, skipping Gamma-Gamma fit")
	}

	features, err := Predict(summaries, float64(e.cfg.HorizonDays), bg, monetary)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Features:        features,
		Summaries:       summaries,
		BGNBD:           bg,
		GammaGamma:      gg,
		Customers:       len(summaries),
		RepeatCustomers: repeat,
	}

	res.BGNBDVersion = e.persist(ctx, registry.ModelBGNBD, bg, registry.Metadata{
		Kind: "bgnbd",
		Params: map[string]float64{
			"r": bg.Params.R, "alpha": bg.Params.Alpha, "a": bg.Params.A, "b": bg.Params.B,
			"log_likelihood": bg.LogLikelihood,
		},
		Tags: map[string]string{"cutoff": cutoff.UTC().Format(time.RFC3339)},
	})
	if gg != nil {
		res.GammaGammaVersion = e.persist(ctx, registry.ModelGammaGamma, gg, registry.Metadata{
			Kind: "gamma_gamma",
			Params: map[string]float64{
				"p": gg.Params.P, "q": gg.Params.Q, "v": gg.Params.V,
				"log_likelihood": gg.LogLikelihood,
			},
			Tags: map[string]string{"cutoff": cutoff.UTC().Format(time.RFC3339)},
		})
	}

	return res, nil
}

// persist registers and promotes artifact. Failures are logged and reported as version 0.
//
//nolint:gocritic // meta passed by value to match the Registry interface
func (e *Estimator) persist(ctx context.Context, name string, artifact any, meta registry.Metadata) int {
	if e.registry == nil {
		return 0
	}
	meta.RunID = logging.RunIDFromContext(ctx)
	log := logging.WithContext(ctx, e.logger)

	version, err := e.registry.Register(ctx, name, artifact, meta)
	if err != nil {
		log.Warn().Err(err).Str("model", name).Msg("Failed to register model")
		return 0
	}
	if err := e.registry.Promote(ctx, name, version, registry.StageProduction); err != nil {
		log.Warn().Err(err).Str("model", name).Int("version", version).Msg("Failed to promote model")
		return version
	}
	log.Info().Str("model", name).Int("version", version).Msg("Registered model")
	return version
}

// Predict scores summaries over horizon days. Customers with no repeat
// purchases, or all customers when monetary is nil, use their observed
// average order value instead of the monetary model. So does any customer
// for whom the monetary model has no finite expectation.
func Predict(summaries []Summary, horizon float64, purchases PurchaseModel, monetary MonetaryModel) ([]models.ProbabilisticFeatures, error) {
	out := make([]models.ProbabilisticFeatures, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]

		n, err := purchases.ExpectedPurchases(horizon, s.Frequency, s.Recency, s.T)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", s.CustomerID, err)
		}

		value := s.ObservedAverage
		if s.Frequency > 0 && monetary != nil {
			v, err := monetary.ConditionalExpectedValue(s.Frequency, s.MonetaryValue)
			switch {
			case err == nil:
				value = v
			case !errors.Is(err, ErrNonFinite):
				return nil, fmt.Errorf("customer %s: %w", s.CustomerID, err)
			}
		}

		clv := n * value
		if !finite(clv) {
			return nil, fmt.Errorf("customer %s: %w: clv", s.CustomerID, ErrNonFinite)
		}
		out = append(out, models.ProbabilisticFeatures{
			CustomerID:            s.CustomerID,
			PredictedPurchases90d: n,
			ExpectedMonetaryValue: value,
			ProbabilisticCLV90d:   clv,
		})
	}
	return out, nil
}

// Merge returns a copy of features with the probabilistic columns filled
// from prob by CustomerID. Customers without a prediction get zeros.
func Merge(features []models.CustomerFeatures, prob []models.ProbabilisticFeatures) []models.CustomerFeatures {
	byID := make(map[string]models.ProbabilisticFeatures, len(prob))
	for _, p := range prob {
		byID[p.CustomerID] = p
	}

	out := make([]models.CustomerFeatures, len(features))
	for i := range features {
		p := byID[features[i].CustomerID]
		p.CustomerID = features[i].CustomerID
		out[i] = features[i].WithProbabilistic(p)
	}
	return out
}
