// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/cache"
	"github.com/tomtom215/lodestar/internal/database"
	"github.com/tomtom215/lodestar/internal/inference"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/pipeline"
	"github.com/tomtom215/lodestar/internal/validation"
)

const maxBodyBytes = 1 << 20

// Handler implements the API routes.
type Handler struct {
	cfg       Config
	deps      Deps
	logger    zerolog.Logger
	startTime time.Time

	// clvCache memoises PredictCLV per model handle and purchase summary.
	clvCache *cache.LRU[models.ProbabilisticFeatures]
}

// NewHandler creates a handler.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHandler(cfg Config, deps Deps, logger zerolog.Logger) *Handler {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	return &Handler{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
		clvCache:  cache.NewLRU[models.ProbabilisticFeatures](cfg.CacheSize, cfg.CacheTTL),
	}
}

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status            string              `json:"status"`
	DatabaseConnected bool                `json:"database_connected"`
	ModelsLoaded      bool                `json:"models_loaded"`
	ModelVersions     *inference.Versions `json:"model_versions,omitempty"`
	ModelsLoadedAt    *time.Time          `json:"models_loaded_at,omitempty"`
	PipelineRunning   bool                `json:"pipeline_running"`
	LastRun           *pipeline.RunResult `json:"last_run,omitempty"`
	Uptime            float64             `json:"uptime_seconds"`
}

// PredictRequest is the body of the prediction routes.
type PredictRequest struct {
	CustomerIDs []string `json:"customer_ids" validate:"required,min=1,dive,required"`
}

// SegmentPrediction is one row of POST /api/v1/predict/segment.
type SegmentPrediction struct {
	CustomerID string `json:"CustomerID"`
	Cluster    int    `json:"cluster"`
	Label      string `json:"segment_label"`
}

// Health reports database connectivity, loaded models and pipeline state.
// Models are not loaded by this route.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	health := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: h.deps.Store != nil && h.deps.Store.Ping(r.Context()) == nil,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !health.DatabaseConnected {
		health.Status = "degraded"
	}
	if h.deps.Models != nil {
		if handle := h.deps.Models.Cached(); handle != nil {
			versions := handle.Versions
			loadedAt := handle.LoadedAt
			health.ModelsLoaded = true
			health.ModelVersions = &versions
			health.ModelsLoadedAt = &loadedAt
		}
	}
	if h.deps.Status != nil {
		health.PipelineRunning, health.LastRun = h.deps.Status.Status()
	}
	respondJSON(w, r, start, http.StatusOK, health, 0)
}

// Customer returns one processed feature record.
func (h *Handler) Customer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	f, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, start, err)
		return
	}
	respondJSON(w, r, start, http.StatusOK, f, 1)
}

// PredictCLV scores the requested customers with the production BG/NBD and
// Gamma-Gamma models.
func (h *Handler) PredictCLV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	features, handle, ok := h.prepare(w, r, start)
	if !ok {
		return
	}
	ids := make([]string, len(features))
	for i := range features {
		ids[i] = features[i].CustomerID
	}
	summaries, err := h.deps.Store.GetSummaries(r.Context(), ids)
	if err != nil {
		h.storeError(w, r, start, err)
		return
	}
	out, err := h.predictCLV(handle, features, summaries)
	if err != nil {
		respondError(w, r, start, http.StatusInternalServerError, ErrCodeInternalError, "CLV prediction failed", nil)
		return
	}
	respondJSON(w, r, start, http.StatusOK, out, len(out))
}

// predictCLV re-scores each customer from the purchase summary stored with
// its feature row. Rows without a summary, written before summaries were
// stored, are served their stored probabilistic columns. Scores are pure in
// (handle, summary), so cached entries never go stale.
func (h *Handler) predictCLV(handle *inference.Handle, features []models.CustomerFeatures, summaries map[string]models.PurchaseSummary) ([]models.ProbabilisticFeatures, error) {
	out := make([]models.ProbabilisticFeatures, len(features))
	var (
		missIdx  []int
		missRows []models.PurchaseSummary
	)
	for i := range features {
		s, ok := summaries[features[i].CustomerID]
		if !ok {
			out[i] = features[i].Probabilistic()
			continue
		}
		if v, ok := h.clvCache.Get(clvKey(handle, &s)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missRows = append(missRows, s)
	}
	if len(missRows) == 0 {
		return out, nil
	}

	scored, err := handle.PredictCLVBatch(missRows)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = scored[j]
		h.clvCache.Add(clvKey(handle, &missRows[j]), scored[j])
	}
	return out, nil
}

func clvKey(handle *inference.Handle, s *models.PurchaseSummary) string {
	return fmt.Sprintf("%d|%+v", handle.LoadedAt.UnixNano(), *s)
}

// PredictSegment assigns the requested customers to production segments.
func (h *Handler) PredictSegment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	features, handle, ok := h.prepare(w, r, start)
	if !ok {
		return
	}
	labeled, err := handle.PredictSegments(features)
	if err != nil {
		respondError(w, r, start, http.StatusInternalServerError, ErrCodeInternalError, "segment prediction failed", nil)
		return
	}
	out := make([]SegmentPrediction, len(labeled))
	for i := range labeled {
		out[i] = SegmentPrediction{
			CustomerID: labeled[i].Features.CustomerID,
			Cluster:    labeled[i].Cluster,
			Label:      labeled[i].Label,
		}
	}
	respondJSON(w, r, start, http.StatusOK, out, len(out))
}

// prepare decodes and validates a prediction request, reads the customers'
// features and loads the production models. It writes the error response
// itself and returns ok=false on failure.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, start time.Time) ([]models.CustomerFeatures, *inference.Handle, bool) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, start, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil)
		return nil, nil, false
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, r, start, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), verr.Fields)
		return nil, nil, false
	}
	if verr := validation.ValidateVar("customer_ids", len(req.CustomerIDs), fmt.Sprintf("lte=%d", h.cfg.MaxBatchSize)); verr != nil {
		respondError(w, r, start, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), verr.Fields)
		return nil, nil, false
	}

	features, err := h.deps.Store.GetMany(r.Context(), req.CustomerIDs)
	if err != nil {
		h.storeError(w, r, start, err)
		return nil, nil, false
	}

	handle, err := h.deps.Models.Production(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Production models unavailable")
		respondError(w, r, start, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "production models are not available", nil)
		return nil, nil, false
	}
	return features, handle, true
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	var nf *database.NotFoundError
	switch {
	case errors.As(err, &nf):
		respondError(w, r, start, http.StatusNotFound, ErrCodeNotFound, "unknown customer ids",
			map[string][]string{"missing_customer_ids": nf.IDs})
	case errors.Is(err, database.ErrCustomerNotFound):
		respondError(w, r, start, http.StatusNotFound, ErrCodeNotFound, "unknown customer id",
			map[string][]string{"missing_customer_ids": {chi.URLParam(r, "id")}})
	default:
		h.logger.Error().Err(err).Msg("Feature store read failed")
		respondError(w, r, start, http.StatusInternalServerError, ErrCodeInternalError, "feature store read failed", nil)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, time.Now(), http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, time.Now(), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}

func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, time.Now(), http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded", nil)
}
