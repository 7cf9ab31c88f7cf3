// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/registry"
	"github.com/tomtom215/lodestar/internal/segment/clustering"
)

// groupedFeatures returns three clearly separated customer groups of ten:
// champions (C1000-C1009), loyalists (C1010-C1019) and lapsed (C1020-C1029).
func groupedFeatures() []models.CustomerFeatures {
	bases := []models.CustomerFeatures{
		{Recency: 5, Frequency: 40, MonetaryValue: 4000, ProbabilisticCLV90d: 1500},
		{Recency: 60, Frequency: 15, MonetaryValue: 1200, ProbabilisticCLV90d: 400},
		{Recency: 300, Frequency: 2, MonetaryValue: 80, ProbabilisticCLV90d: 10},
	}
	var out []models.CustomerFeatures
	for g, b := range bases {
		for i := 0; i < 10; i++ {
			f := b
			f.CustomerID = fmt.Sprintf("C%d", 1000+g*10+i)
			f.Recency += i % 4
			f.Frequency += i % 3
			f.MonetaryValue += float64((i * 7) % 11)
			f.ProbabilisticCLV90d += float64((i * 5) % 13)
			out = append(out, f)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.KMin, cfg.KMax = 3, 3
	cfg.Workers = 2
	return cfg
}

func TestEnumerate(t *testing.T) {
	got := Enumerate(Config{KMin: 2, KMax: 3})
	want := []Candidate{
		{Index: 0, Family: FamilyKMeans, K: 2},
		{Index: 1, Family: FamilyGMM, K: 2},
		{Index: 2, Family: FamilyKMeans, K: 3},
		{Index: 3, Family: FamilyGMM, K: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("Enumerate() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Enumerate()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSelectWinner(t *testing.T) {
	fail := errors.New("singular covariance")
	tests := []struct {
		name    string
		scores  []float64
		errs    []error
		want    int
		wantErr error
	}{
		{"highest wins", []float64{0.2, 0.5, 0.4}, []error{nil, nil, nil}, 1, nil},
		{"tie keeps first", []float64{0.5, 0.5, 0.3}, []error{nil, nil, nil}, 0, nil},
		{"failed skipped", []float64{0.9, 0.5, 0.3}, []error{fail, nil, nil}, 1, nil},
		{"negative scores", []float64{-0.2, -0.1}, []error{nil, nil}, 1, nil},
		{"all failed", []float64{0, 0}, []error{fail, fail}, -1, ErrAllCandidatesFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CandidateResult, len(tt.scores))
			for i := range results {
				results[i] = CandidateResult{Candidate: Candidate{Index: i}, Score: tt.scores[i], Err: tt.errs[i]}
			}
			got, err := selectWinner(results)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("selectWinner() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("selectWinner() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFitCandidates_OrderAndConcurrency(t *testing.T) {
	x, _ := Matrix(groupedFeatures(), models.SegmentationFeatureSet())
	candidates := Enumerate(Config{KMin: 2, KMax: 5})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	base := defaultFit(DefaultConfig())
	fit := func(ctx context.Context, x [][]float64, c Candidate) (Model, []int, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		// Later candidates finish first.
		time.Sleep(time.Duration(len(candidates)-c.Index) * time.Millisecond)
		return base(ctx, x, c)
	}

	results := fitCandidates(context.Background(), x, candidates, 3, fit)

	if maxInFlight > 3 {
		t.Errorf("max concurrent fits = %d, want <= 3", maxInFlight)
	}
	for i, r := range results {
		if r.Candidate != candidates[i] {
			t.Errorf("results[%d] = %v, want %v", i, r.Candidate, candidates[i])
		}
	}
}

func TestFitCandidates_RecoversPanics(t *testing.T) {
	x, _ := Matrix(groupedFeatures(), models.SegmentationFeatureSet())
	fit := func(context.Context, [][]float64, Candidate) (Model, []int, error) {
		panic("matrix singular")
	}
	results := fitCandidates(context.Background(), x, Enumerate(Config{KMin: 2, KMax: 2}), 1, fit)
	for _, r := range results {
		if r.Err == nil {
			t.Errorf("%v error = nil, want recovered panic", r.Candidate)
		}
	}
}

func TestTrainer_Train(t *testing.T) {
	reg, err := registry.NewFileRegistry(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatalf("NewFileRegistry() error = %v", err)
	}
	features := groupedFeatures()

	trainer := NewTrainer(testConfig(), reg, zerolog.Nop())
	res, err := trainer.Train(context.Background(), features)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if res.Winner.K != 3 {
		t.Errorf("winner k = %d, want 3", res.Winner.K)
	}
	if len(res.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(res.Candidates))
	}

	wantLabel := func(i int) string {
		switch i / 10 {
		case 0:
			return LabelChampion
		case 1:
			return LabelLoyalist
		default:
			return LabelAtRisk
		}
	}
	for i, c := range res.Customers {
		if c.Features.CustomerID != features[i].CustomerID {
			t.Fatalf("customer %d = %s, want %s", i, c.Features.CustomerID, features[i].CustomerID)
		}
		if c.Label != wantLabel(i) {
			t.Errorf("%s label = %q, want %q", c.Features.CustomerID, c.Label, wantLabel(i))
		}
	}

	if res.ScalerVersion != 1 || res.ModelVersion != 1 || res.Artifact.ScalerVersion != 1 {
		t.Errorf("versions model=%d scaler=%d artifact.scaler=%d, want 1/1/1",
			res.ModelVersion, res.ScalerVersion, res.Artifact.ScalerVersion)
	}

	// The production artifacts reproduce the training labels.
	ctx := context.Background()
	var artifact ModelArtifact
	if _, err := reg.LoadStage(ctx, registry.ModelSegmentation, registry.StageProduction, &artifact); err != nil {
		t.Fatalf("LoadStage(model) error = %v", err)
	}
	var scaler clustering.StandardScaler
	if _, err := reg.Load(ctx, registry.ModelScaler, artifact.ScalerVersion, &scaler); err != nil {
		t.Fatalf("Load(scaler) error = %v", err)
	}
	predictor, err := NewPredictor(&scaler, &artifact)
	if err != nil {
		t.Fatalf("NewPredictor() error = %v", err)
	}
	predicted, err := predictor.PredictLabeled(features)
	if err != nil {
		t.Fatalf("PredictLabeled() error = %v", err)
	}
	for i := range predicted {
		if predicted[i].Label != res.Customers[i].Label {
			t.Errorf("%s served label %q, trained label %q",
				features[i].CustomerID, predicted[i].Label, res.Customers[i].Label)
		}
	}
}

func TestTrainer_SkipsFailedCandidates(t *testing.T) {
	trainer := NewTrainer(testConfig(), nil, zerolog.Nop())
	base := trainer.fit
	trainer.fit = func(ctx context.Context, x [][]float64, c Candidate) (Model, []int, error) {
		if c.Family == FamilyGMM {
			return nil, nil, fmt.Errorf("%w: forced", clustering.ErrDegenerate)
		}
		return base(ctx, x, c)
	}

	res, err := trainer.Train(context.Background(), groupedFeatures())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.Winner.Family != FamilyKMeans {
		t.Errorf("winner family = %s, want kmeans", res.Winner.Family)
	}
	if res.Candidates[1].Err == nil {
		t.Error("gmm candidate error = nil, want forced failure")
	}
	if res.ModelVersion != 0 {
		t.Errorf("ModelVersion = %d, want 0 without registry", res.ModelVersion)
	}
}

func TestTrainer_AllCandidatesFail(t *testing.T) {
	trainer := NewTrainer(testConfig(), nil, zerolog.Nop())
	trainer.fit = func(context.Context, [][]float64, Candidate) (Model, []int, error) {
		return nil, nil, clustering.ErrDegenerate
	}
	if _, err := trainer.Train(context.Background(), groupedFeatures()); !errors.Is(err, ErrAllCandidatesFailed) {
		t.Errorf("Train() error = %v, want ErrAllCandidatesFailed", err)
	}
}

func TestTrainer_TooFewCustomers(t *testing.T) {
	trainer := NewTrainer(testConfig(), nil, zerolog.Nop())
	features := groupedFeatures()[:3]
	if _, err := trainer.Train(context.Background(), features); !errors.Is(err, ErrAllCandidatesFailed) {
		t.Errorf("Train() error = %v, want ErrAllCandidatesFailed", err)
	}
}

func TestNewPredictor_RejectsFeatureSetMismatch(t *testing.T) {
	old := models.FeatureSet{Version: 0, Columns: []string{models.ColRecency}}
	scaler := &clustering.StandardScaler{FeatureSet: old, Mean: []float64{0}, Scale: []float64{1}}
	artifact := &ModelArtifact{Family: FamilyKMeans, K: 1, FeatureSet: models.SegmentationFeatureSet(),
		KMeans: &clustering.KMeans{Centroids: [][]float64{{0, 0, 0, 0}}}}

	if _, err := NewPredictor(scaler, artifact); !errors.Is(err, clustering.ErrFeatureSetMismatch) {
		t.Errorf("NewPredictor() error = %v, want ErrFeatureSetMismatch", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"k_min too small", func(c *Config) { c.KMin = 1 }, true},
		{"k_max below k_min", func(c *Config) { c.KMin, c.KMax = 4, 3 }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
