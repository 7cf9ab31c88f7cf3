// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"fmt"
	"runtime"
)

// Family identifies a clustering model family.
type Family string

// Supported families, in candidate enumeration order.
const (
	FamilyKMeans Family = "kmeans"
	FamilyGMM    Family = "gmm"
)

// Families returns the supported families in enumeration order.
func Families() []Family {
	return []Family{FamilyKMeans, FamilyGMM}
}

// Config configures the Trainer.
type Config struct {
	// KMin and KMax bound the candidate cluster counts (inclusive).
	KMin int `koanf:"k_min"`
	KMax int `koanf:"k_max"`

	// Workers bounds concurrent candidate fits. Zero means GOMAXPROCS.
	Workers int `koanf:"workers"`

	// Seed makes every fit reproducible.
	Seed int64 `koanf:"seed"`

	KMeansInit    int     `koanf:"kmeans_n_init"`
	KMeansMaxIter int     `koanf:"kmeans_max_iter"`
	KMeansTol     float64 `koanf:"kmeans_tol"`

	GMMMaxIter  int     `koanf:"gmm_max_iter"`
	GMMTol      float64 `koanf:"gmm_tol"`
	GMMRegCovar float64 `koanf:"gmm_reg_covar"`
}

// DefaultConfig returns k in [3, 5] with the library defaults for each family.
func DefaultConfig() Config {
	return Config{
		KMin:          3,
		KMax:          5,
		Workers:       0,
		Seed:          42,
		KMeansInit:    10,
		KMeansMaxIter: 300,
		KMeansTol:     1e-4,
		GMMMaxIter:    100,
		GMMTol:        1e-3,
		GMMRegCovar:   1e-6,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.KMin < 2 {
		return fmt.Errorf("segmentation.k_min must be >= 2, got %d", c.KMin)
	}
	if c.KMax < c.KMin {
		return fmt.Errorf("segmentation.k_max (%d) must be >= k_min (%d)", c.KMax, c.KMin)
	}
	if c.Workers < 0 {
		return fmt.Errorf("segmentation.workers must be >= 0, got %d", c.Workers)
	}
	if c.KMeansInit < 1 || c.KMeansMaxIter < 1 || c.GMMMaxIter < 1 {
		return fmt.Errorf("segmentation iteration counts must be positive")
	}
	if c.KMeansTol <= 0 || c.GMMTol <= 0 || c.GMMRegCovar <= 0 {
		return fmt.Errorf("segmentation tolerances must be positive")
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
