// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lodestar/internal/database"
	"github.com/tomtom215/lodestar/internal/features"
	"github.com/tomtom215/lodestar/internal/inference"
	"github.com/tomtom215/lodestar/internal/ingest"
	"github.com/tomtom215/lodestar/internal/models"
	"github.com/tomtom215/lodestar/internal/pipeline"
	"github.com/tomtom215/lodestar/internal/probabilistic"
	"github.com/tomtom215/lodestar/internal/segment"
)

type fakeStore struct {
	rows      map[string]models.CustomerFeatures
	summaries map[string]models.PurchaseSummary
	pingErr   error
	readErr   error
}

func (s *fakeStore) Get(_ context.Context, id string) (models.CustomerFeatures, error) {
	if s.readErr != nil {
		return models.CustomerFeatures{}, s.readErr
	}
	f, ok := s.rows[id]
	if !ok {
		return models.CustomerFeatures{}, fmt.Errorf("%w: %s", database.ErrCustomerNotFound, id)
	}
	return f, nil
}

func (s *fakeStore) GetMany(_ context.Context, ids []string) ([]models.CustomerFeatures, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []models.CustomerFeatures
	var missing []string
	for _, id := range ids {
		f, ok := s.rows[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, f)
	}
	if len(missing) > 0 {
		return nil, &database.NotFoundError{IDs: missing}
	}
	return out, nil
}

func (s *fakeStore) GetSummaries(_ context.Context, ids []string) (map[string]models.PurchaseSummary, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make(map[string]models.PurchaseSummary, len(ids))
	for _, id := range ids {
		if p, ok := s.summaries[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeModels struct {
	handle *inference.Handle
	err    error
	cached bool
}

func (m *fakeModels) Production(context.Context) (*inference.Handle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.handle, nil
}

func (m *fakeModels) Cached() *inference.Handle {
	if !m.cached {
		return nil
	}
	return m.handle
}

type fakeStatus struct {
	running bool
	last    *pipeline.RunResult
}

func (s fakeStatus) Status() (bool, *pipeline.RunResult) { return s.running, s.last }

func featureRows() []models.CustomerFeatures {
	bases := []models.CustomerFeatures{
		{Recency: 5, Frequency: 40, MonetaryValue: 4000, CustomerTenure: 600, AvgOrderValue: 100, ProbabilisticCLV90d: 1500},
		{Recency: 60, Frequency: 15, MonetaryValue: 1200, CustomerTenure: 400, AvgOrderValue: 80, ProbabilisticCLV90d: 400},
		{Recency: 300, Frequency: 1, MonetaryValue: 40, CustomerTenure: 300, AvgOrderValue: 40, ProbabilisticCLV90d: 10},
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

// summaryFor gives every test row a purchase history consistent with its features.
//
//nolint:gocritic // records are small values and copied on purpose
func summaryFor(f models.CustomerFeatures) models.PurchaseSummary {
	p := models.PurchaseSummary{
		CustomerID:      f.CustomerID,
		T:               float64(f.CustomerTenure),
		ObservedAverage: f.AvgOrderValue,
	}
	if f.Frequency > 1 {
		p.Frequency = float64(f.Frequency - 1)
		p.Recency = float64(f.CustomerTenure - f.Recency)
		p.MonetaryValue = f.AvgOrderValue * 1.1
	}
	return p
}

func newHandle(t *testing.T, rows []models.CustomerFeatures) *inference.Handle {
	t.Helper()
	cfg := segment.DefaultConfig()
	cfg.KMin, cfg.KMax = 3, 3
	res, err := segment.NewTrainer(cfg, nil, zerolog.Nop()).Train(context.Background(), rows)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	predictor, err := segment.NewPredictor(res.Scaler, res.Artifact)
	if err != nil {
		t.Fatalf("NewPredictor() error = %v", err)
	}
	bg := &probabilistic.BGNBD{Params: probabilistic.BGNBDParams{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}}
	gg := &probabilistic.GammaGamma{Params: probabilistic.GammaGammaParams{P: 6.25, Q: 3.74, V: 15.44}}
	return inference.NewHandle(bg, gg, predictor, 90, inference.Versions{BGNBD: 1, GammaGamma: 1, Segmentation: 1, Scaler: 1})
}

type testServer struct {
	router http.Handler
	store  *fakeStore
	models *fakeModels
	rows   []models.CustomerFeatures
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	rows := featureRows()
	store := &fakeStore{
		rows:      make(map[string]models.CustomerFeatures, len(rows)),
		summaries: make(map[string]models.PurchaseSummary, len(rows)),
	}
	for _, f := range rows {
		store.rows[f.CustomerID] = f
		store.summaries[f.CustomerID] = summaryFor(f)
	}
	fm := &fakeModels{handle: newHandle(t, rows)}
	router := NewRouter(cfg, Deps{
		Store:  store,
		Models: fm,
		Status: fakeStatus{last: &pipeline.RunResult{RunID: "run-1", Status: pipeline.StatusSucceeded}},
	}, zerolog.Nop())
	return &testServer{router: router, store: store, models: fm, rows: rows}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta *APIMeta `json:"meta"`
}

func (e envelope) missingIDs(t *testing.T) []string {
	t.Helper()
	if e.Error == nil {
		t.Fatal("expected error envelope")
	}
	var details map[string][]string
	if err := json.Unmarshal(e.Error.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	return details["missing_customer_ids"]
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
		}
	}
	return w, env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	w, env := srv.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var health HealthStatus
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || !health.DatabaseConnected {
		t.Errorf("health = %+v, want healthy and connected", health)
	}
	if health.ModelsLoaded {
		t.Error("ModelsLoaded = true before any prediction")
	}
	if health.LastRun == nil || health.LastRun.RunID != "run-1" {
		t.Errorf("LastRun = %+v, want run-1", health.LastRun)
	}

	srv.models.cached = true
	srv.store.pingErr = errors.New("closed")
	_, env = srv.do(t, http.MethodGet, "/api/v1/health", "")
	health = HealthStatus{}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", health.Status)
	}
	if !health.ModelsLoaded || health.ModelVersions == nil || health.ModelVersions.Segmentation != 1 {
		t.Errorf("model fields = %v %+v, want loaded version 1", health.ModelsLoaded, health.ModelVersions)
	}
}

func TestCustomer(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	w, env := srv.do(t, http.MethodGet, "/api/v1/customers/C1000", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d success = %v, want 200 true", w.Code, env.Success)
	}
	var f models.CustomerFeatures
	if err := json.Unmarshal(env.Data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f != srv.store.rows["C1000"] {
		t.Errorf("record = %+v, want %+v", f, srv.store.rows["C1000"])
	}

	w, env = srv.do(t, http.MethodGet, "/api/v1/customers/NOPE", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if env.Success || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Fatalf("error = %+v, want NOT_FOUND", env.Error)
	}
	if got := env.missingIDs(t); !reflect.DeepEqual(got, []string{"NOPE"}) {
		t.Errorf("missing ids = %v, want [NOPE]", got)
	}
}

func TestCustomer_StoreFailure(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	srv.store.readErr = errors.New("disk gone")

	w, env := srv.do(t, http.MethodGet, "/api/v1/customers/C1000", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeInternalError {
		t.Errorf("error = %+v, want INTERNAL_ERROR", env.Error)
	}
}

func TestPredictCLV(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	w, env := srv.do(t, http.MethodPost, "/api/v1/predict/clv", `{"customer_ids":["C1020","C1000"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var got []models.ProbabilisticFeatures
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, err := srv.models.handle.PredictCLVBatch([]models.PurchaseSummary{srv.store.summaries["C1020"], srv.store.summaries["C1000"]})
	if err != nil {
		t.Fatalf("PredictCLVBatch() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("predictions = %+v, want %+v", got, want)
	}
	if env.Meta == nil || env.Meta.Count != 2 {
		t.Errorf("meta = %+v, want count 2", env.Meta)
	}
}

func TestPredictCLV_Cached(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	h := NewHandler(DefaultConfig(), Deps{Store: srv.store, Models: srv.models}, zerolog.Nop())
	batch := []models.CustomerFeatures{srv.store.rows["C1000"], srv.store.rows["C1001"]}

	first, err := h.predictCLV(srv.models.handle, batch, srv.store.summaries)
	if err != nil {
		t.Fatalf("predictCLV() error = %v", err)
	}
	second, err := h.predictCLV(srv.models.handle, batch[:1], srv.store.summaries)
	if err != nil {
		t.Fatalf("predictCLV() error = %v", err)
	}
	if second[0] != first[0] {
		t.Errorf("cached prediction = %+v, want %+v", second[0], first[0])
	}
	hits, misses, size := h.clvCache.Stats()
	if hits != 1 || misses != 2 || size != 2 {
		t.Errorf("cache stats = %d hits, %d misses, %d entries, want 1, 2, 2", hits, misses, size)
	}

	changed := srv.store.summaries["C1000"]
	changed.Frequency++
	third, err := h.predictCLV(srv.models.handle, batch[:1], map[string]models.PurchaseSummary{"C1000": changed})
	if err != nil {
		t.Fatalf("predictCLV() error = %v", err)
	}
	if third[0] == first[0] {
		t.Error("changed purchase summary served from cache")
	}
}

func TestPredictCLV_WithoutSummaryServesStoredColumns(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	stored := srv.store.rows["C1010"]
	stored.PredictedPurchases90d, stored.ExpectedMonetaryValue, stored.ProbabilisticCLV90d = 0.75, 64, 48
	srv.store.rows["C1010"] = stored
	delete(srv.store.summaries, "C1010")

	w, env := srv.do(t, http.MethodPost, "/api/v1/predict/clv", `{"customer_ids":["C1010"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var got []models.ProbabilisticFeatures
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0] != stored.Probabilistic() {
		t.Errorf("predictions = %+v, want stored %+v", got, stored.Probabilistic())
	}
}

// TestPredictCLV_MatchesPipelineOutput serves a feature table produced the
// way a pipeline run produces it and expects the stored values back exactly.
func TestPredictCLV_MatchesPipelineOutput(t *testing.T) {
	cfg := ingest.DefaultSyntheticConfig()
	cfg.Customers = 120
	cfg.Transactions = 4000
	txs, err := ingest.GenerateSynthetic(cfg)
	if err != nil {
		t.Fatalf("GenerateSynthetic() error = %v", err)
	}
	built, err := features.Build(txs, features.Options{Mode: features.ModeTraining})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	prob, err := probabilistic.NewEstimator(probabilistic.DefaultConfig(), nil, zerolog.Nop()).
		Estimate(context.Background(), txs, built.Cutoff)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	rows := probabilistic.Merge(built.Features, prob.Features)

	store := &fakeStore{
		rows:      make(map[string]models.CustomerFeatures, len(rows)),
		summaries: make(map[string]models.PurchaseSummary, len(prob.Summaries)),
	}
	ids := make([]string, len(rows))
	for i, f := range rows {
		store.rows[f.CustomerID] = f
		ids[i] = f.CustomerID
	}
	for _, p := range prob.Summaries {
		store.summaries[p.CustomerID] = p
	}
	handle := inference.NewHandle(prob.BGNBD, prob.GammaGamma, nil, probabilistic.DefaultConfig().HorizonDays, inference.Versions{BGNBD: 1, GammaGamma: 1})
	h := NewHandler(DefaultConfig(), Deps{Store: store, Models: &fakeModels{handle: handle}}, zerolog.Nop())

	got, err := h.predictCLV(handle, rows, store.summaries)
	if err != nil {
		t.Fatalf("predictCLV() error = %v", err)
	}
	for i := range rows {
		if got[i] != rows[i].Probabilistic() {
			t.Errorf("%s served %+v, stored %+v", ids[i], got[i], rows[i].Probabilistic())
		}
	}
}

func TestPredictSegment(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	ids := []string{"C1000", "C1010", "C1029"}
	body, _ := json.Marshal(PredictRequest{CustomerIDs: ids})
	w, env := srv.do(t, http.MethodPost, "/api/v1/predict/segment", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var got []SegmentPrediction
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantLabels := []string{"High-Value Champion", "Potential Loyalist", "At-Risk/New"}
	if len(got) != len(ids) {
		t.Fatalf("len = %d, want %d", len(got), len(ids))
	}
	for i := range got {
		if got[i].CustomerID != ids[i] {
			t.Errorf("row %d CustomerID = %s, want %s", i, got[i].CustomerID, ids[i])
		}
		if got[i].Label != wantLabels[i] {
			t.Errorf("row %d label = %q, want %q", i, got[i].Label, wantLabels[i])
		}
	}
}

func TestPredict_RequestErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 2
	srv := newTestServer(t, cfg)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", "/api/v1/predict/clv", `{"customer_ids":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing field", "/api/v1/predict/clv", `{}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"empty list", "/api/v1/predict/segment", `{"customer_ids":[]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"blank id", "/api/v1/predict/clv", `{"customer_ids":[""]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"batch too large", "/api/v1/predict/clv", `{"customer_ids":["C1000","C1001","C1002"]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown ids", "/api/v1/predict/segment", `{"customer_ids":["C1000","X1"]}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := srv.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestPredict_UnknownIDsListed(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	_, env := srv.do(t, http.MethodPost, "/api/v1/predict/clv", `{"customer_ids":["X2","C1000","X1"]}`)
	if got := env.missingIDs(t); !reflect.DeepEqual(got, []string{"X2", "X1"}) {
		t.Errorf("missing ids = %v, want [X2 X1]", got)
	}
}

func TestPredict_ModelsUnavailable(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	srv.models.err = errors.New("no production model")

	w, env := srv.do(t, http.MethodPost, "/api/v1/predict/clv", `{"customer_ids":["C1000"]}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want SERVICE_UNAVAILABLE", env.Error)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/C1000", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("%s = %q, want req-123", RequestIDHeader, got)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Meta == nil || env.Meta.RequestID != "req-123" {
		t.Errorf("meta = %+v, want request id req-123", env.Meta)
	}

	w, _ = srv.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("generated request id missing")
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{RateLimitRequests: 2, RateLimitWindow: time.Minute, MaxBatchSize: 10})

	for i := 0; i < 2; i++ {
		if w, _ := srv.do(t, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
	w, env := srv.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v, want TOO_MANY_REQUESTS", env.Error)
	}

	if w, _ := srv.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200 outside the limited group", w.Code)
	}
}

func TestRouting(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/predict/clv", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/customers/C1000", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w, env := srv.do(t, tt.method, tt.path, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if env.Success || env.Error == nil {
				t.Errorf("envelope = %+v, want error", env)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}
