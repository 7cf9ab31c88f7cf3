// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tomtom215/lodestar/internal/segment/clustering"
)

// ErrAllCandidatesFailed is returned when no candidate could be fitted and scored.
var ErrAllCandidatesFailed = errors.New("all segmentation candidates failed")

// Model assigns cluster ids to standardised feature rows.
type Model interface {
	Predict(x [][]float64) ([]int, error)
	K() int
}

// Candidate is one (family, k) pair. Index is its position in enumeration order.
type Candidate struct {
	Index  int    `json:"index"`
	Family Family `json:"family"`
	K      int    `json:"k"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s(k=%d)", c.Family, c.K)
}

// CandidateResult is the outcome of fitting one candidate.
type CandidateResult struct {
	Candidate
	Score float64 `json:"score"`
	Err   error   `json:"-"`

	model  Model
	labels []int
}

// Enumerate lists candidates for k in [cfg.KMin, cfg.KMax], kmeans before
// gmm for each k.
func Enumerate(cfg Config) []Candidate {
	var out []Candidate
	for k := cfg.KMin; k <= cfg.KMax; k++ {
		for _, f := range Families() {
			out = append(out, Candidate{Index: len(out), Family: f, K: k})
		}
	}
	return out
}

// fitFunc fits one candidate on standardised data and returns the model and
// training labels.
type fitFunc func(ctx context.Context, x [][]float64, c Candidate) (Model, []int, error)

// defaultFit fits candidates with the clustering package using cfg.
func defaultFit(cfg Config) fitFunc {
	return func(_ context.Context, x [][]float64, c Candidate) (Model, []int, error) {
		switch c.Family {
		case FamilyKMeans:
			return clustering.FitKMeans(x, clustering.KMeansConfig{
				K:       c.K,
				NInit:   cfg.KMeansInit,
				MaxIter: cfg.KMeansMaxIter,
				Tol:     cfg.KMeansTol,
				Seed:    cfg.Seed,
			})
		case FamilyGMM:
			return clustering.FitGMM(x, clustering.GMMConfig{
				K:        c.K,
				MaxIter:  cfg.GMMMaxIter,
				Tol:      cfg.GMMTol,
				RegCovar: cfg.GMMRegCovar,
				Seed:     cfg.Seed,
			})
		}
		return nil, nil, fmt.Errorf("unknown model family %q", c.Family)
	}
}

// fitCandidates fits every candidate with at most workers running at once.
// results[i] always belongs to candidates[i].
func fitCandidates(ctx context.Context, x [][]float64, candidates []Candidate, workers int, fit fitFunc) []CandidateResult {
	results := make([]CandidateResult, len(candidates))
	sem := make(chan struct{}, max(workers, 1))
	var wg sync.WaitGroup

	for i, c := range candidates {
		wg.Add(1)
		go func(idx int, c Candidate) {
			defer wg.Done()
			results[idx] = CandidateResult{Candidate: c}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
				return
			}
			results[idx] = runCandidate(ctx, x, c, fit)
		}(i, c)
	}

	wg.Wait()
	return results
}

func runCandidate(ctx context.Context, x [][]float64, c Candidate, fit fitFunc) (res CandidateResult) {
	res = CandidateResult{Candidate: c}
	defer func() {
		// gonum panics on some degenerate matrices.
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s panicked: %v", c, r)
			res.model, res.labels = nil, nil
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	model, labels, err := fit(ctx, x, c)
	if err != nil {
		res.Err = err
		return res
	}
	score, err := clustering.Silhouette(x, labels)
	if err != nil {
		res.Err = err
		return res
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		res.Err = fmt.Errorf("%w: non-finite silhouette", clustering.ErrDegenerate)
		return res
	}
	res.Score, res.model, res.labels = score, model, labels
	return res
}

// selectWinner returns the index of the best successful result. Results are
// compared in slice order and a later result wins only with a strictly
// higher score.
func selectWinner(results []CandidateResult) (int, error) {
	best := -1
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if best < 0 || results[i].Score > results[best].Score {
			best = i
		}
	}
	if best < 0 {
		return -1, fmt.Errorf("%w: %d candidates", ErrAllCandidatesFailed, len(results))
	}
	return best, nil
}
