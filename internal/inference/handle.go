// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package inference

import (
	"time"

	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/segment"
)

// Versions records the registry versions a Handle was built from.
// GammaGamma is 0 when no spend model has been registered.
type Versions struct {
	BGNBD        int `json:"bgnbd"`
	GammaGamma   int `json:"gamma_gamma"`
	Segmentation int `json:"segmentation"`
	Scaler       int `json:"scaler"`
}

// Handle holds one consistent set of production models.
type Handle struct {
	bgnbd      *probabilistic.BGNBD
	gammaGamma *probabilistic.GammaGamma
	segmenter  *segment.Predictor
	horizon    float64

	Versions Versions
	LoadedAt time.Time
}

// NewHandle assembles a handle from already loaded models. gg may be nil.
func NewHandle(bg *probabilistic.BGNBD, gg *probabilistic.GammaGamma, segmenter *segment.Predictor, horizonDays int, versions Versions) *Handle {
	return &Handle{
		bgnbd:      bg,
		gammaGamma: gg,
		segmenter:  segmenter,
		horizon:    float64(horizonDays),
		Versions:   versions,
		LoadedAt:   time.Now().UTC(),
	}
}

// PredictCLV scores one customer from their purchase summary.
//
//nolint:gocritic // summaries are small values and copied on purpose
func (h *Handle) PredictCLV(s models.PurchaseSummary) (models.ProbabilisticFeatures, error) {
	out, err := h.PredictCLVBatch([]models.PurchaseSummary{s})
	if err != nil {
		return models.ProbabilisticFeatures{}, err
	}
	return out[0], nil
}

// PredictCLVBatch scores summaries in input order. Given the summaries a
// pipeline run stored, it reproduces the run's probabilistic columns.
func (h *Handle) PredictCLVBatch(summaries []models.PurchaseSummary) ([]models.ProbabilisticFeatures, error) {
	var monetary probabilistic.MonetaryModel
	if h.gammaGamma != nil {
		monetary = h.gammaGamma
	}
	return probabilistic.Predict(summaries, h.horizon, h.bgnbd, monetary)
}

// PredictSegment returns the cluster id of one feature record.
//
//nolint:gocritic // records are small values and copied on purpose
func (h *Handle) PredictSegment(f models.CustomerFeatures) (int, error) {
	out, err := h.segmenter.Predict([]models.CustomerFeatures{f})
	if err != nil {
		return 0, err
	}
	return out[0].Cluster, nil
}

// PredictSegments assigns clusters and the labels stored with the model.
func (h *Handle) PredictSegments(features []models.CustomerFeatures) ([]models.LabeledCustomer, error) {
	return h.segmenter.PredictLabeled(features)
}

// Label labels segmented records from their own cluster means. With a
// segmentation model loaded every one of its clusters gets a label, even
// those no record falls into.
func (h *Handle) Label(records []models.SegmentedCustomer) ([]models.LabeledCustomer, map[int]string) {
	if h.segmenter == nil {
		labeled, labelMap, _ := segment.Label(records)
		return labeled, labelMap
	}
	labeled, labelMap, _ := segment.LabelAll(records, h.segmenter.Artifact().K)
	return labeled, labelMap
}

// Segmentation returns the production segmentation artifact.
func (h *Handle) Segmentation() *segment.ModelArtifact {
	return h.segmenter.Artifact()
}
