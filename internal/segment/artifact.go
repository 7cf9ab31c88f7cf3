// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"fmt"

	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/segment/clustering"
)

// ModelArtifact is the registry payload for a trained segmentation model.
// Exactly one of KMeans and GMM is set, matching Family.
type ModelArtifact struct {
	Family Family
	K      int
	Score  float64

	// FeatureSet is the column set the model was trained on.
	FeatureSet models.FeatureSet

	// ScalerVersion is the registry version of the scaler fitted alongside
	// the model; 0 when the model was not persisted.
	ScalerVersion int

	// LabelMap maps cluster id to business label as computed on the
	// training data.
	LabelMap map[int]string

	KMeans *clustering.KMeans
	GMM    *clustering.GaussianMixture
}

func newArtifact(res *CandidateResult, fs models.FeatureSet, labelMap map[int]string) (*ModelArtifact, error) {
	a := &ModelArtifact{
		Family:     res.Family,
		K:          res.K,
		Score:      res.Score,
		FeatureSet: fs,
		LabelMap:   labelMap,
	}
	switch m := res.model.(type) {
	case *clustering.KMeans:
		a.KMeans = m
	case *clustering.GaussianMixture:
		a.GMM = m
	default:
		return nil, fmt.Errorf("unsupported segmentation model %T", res.model)
	}
	return a, nil
}

// Model returns the clustering model held by the artifact.
func (a *ModelArtifact) Model() (Model, error) {
	switch {
	case a.Family == FamilyKMeans && a.KMeans != nil:
		return a.KMeans, nil
	case a.Family == FamilyGMM && a.GMM != nil:
		return a.GMM, nil
	}
	return nil, fmt.Errorf("segmentation artifact for %s(k=%d) has no model", a.Family, a.K)
}

// Matrix builds one row per customer from the columns of fs.
func Matrix(features []models.CustomerFeatures, fs models.FeatureSet) ([][]float64, error) {
	x := make([][]float64, len(features))
	for i := range features {
		row := make([]float64, len(fs.Columns))
		for j, col := range fs.Columns {
			v, err := features[i].Column(col)
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		x[i] = row
	}
	return x, nil
}

// Predictor scores customers with a trained scaler and model.
type Predictor struct {
	scaler   *clustering.StandardScaler
	artifact *ModelArtifact
	model    Model
}

// NewPredictor pairs a scaler with a model artifact. Both must have been
// trained on the current segmentation feature set.
func NewPredictor(scaler *clustering.StandardScaler, artifact *ModelArtifact) (*Predictor, error) {
	fs := models.SegmentationFeatureSet()
	if err := scaler.Check(fs); err != nil {
		return nil, err
	}
	if !artifact.FeatureSet.Equal(fs) {
		return nil, fmt.Errorf("%w: model trained on version %d, serving version %d",
			clustering.ErrFeatureSetMismatch, artifact.FeatureSet.Version, fs.Version)
	}
	model, err := artifact.Model()
	if err != nil {
		return nil, err
	}
	return &Predictor{scaler: scaler, artifact: artifact, model: model}, nil
}

// Artifact returns the model artifact.
func (p *Predictor) Artifact() *ModelArtifact {
	return p.artifact
}

// Predict assigns a cluster to each customer.
func (p *Predictor) Predict(features []models.CustomerFeatures) ([]models.SegmentedCustomer, error) {
	x, err := Matrix(features, p.scaler.FeatureSet)
	if err != nil {
		return nil, err
	}
	xs, err := p.scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	clusters, err := p.model.Predict(xs)
	if err != nil {
		return nil, err
	}
	out := make([]models.SegmentedCustomer, len(features))
	for i := range features {
		out[i] = models.SegmentedCustomer{Features: features[i], Cluster: clusters[i]}
	}
	return out, nil
}

// PredictLabeled assigns a cluster and the stored training label to each customer.
func (p *Predictor) PredictLabeled(features []models.CustomerFeatures) ([]models.LabeledCustomer, error) {
	segmented, err := p.Predict(features)
	if err != nil {
		return nil, err
	}
	return ApplyLabels(segmented, p.artifact.LabelMap), nil
}
