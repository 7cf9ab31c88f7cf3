// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/metrics"
)

// GuardConfig configures Guarded.
type GuardConfig struct {
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration `koanf:"timeout"`

	// MaxAttempts is the total number of tries per call, including the first.
	MaxAttempts int `koanf:"max_attempts"`

	// Backoff is the delay before the second attempt; it doubles afterwards.
	Backoff time.Duration `koanf:"backoff"`

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// DefaultGuardConfig returns a 30s timeout, 3 attempts from 200ms backoff,
// and a breaker that opens after 5 consecutive failures for 1 minute.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:          30 * time.Second,
		MaxAttempts:      3,
		Backoff:          200 * time.Millisecond,
		FailureThreshold: 5,
		OpenTimeout:      time.Minute,
	}
}

// Guarded wraps a Registry with timeout, retry and circuit breaker protection.
//
// Not-found, checksum and name errors are permanent: they are returned at
// once and do not count against the breaker.
type Guarded struct {
	inner Registry
	cfg   GuardConfig
	cb    *gobreaker.CircuitBreaker[any]
}

// NewGuarded wraps inner.
func NewGuarded(inner Registry, cfg GuardConfig) *Guarded {
	def := DefaultGuardConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	metrics.RegistryCircuitState.Set(0)
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "model-registry",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Registry circuit breaker state transition")
			metrics.RegistryCircuitState.Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
	})

	return &Guarded{inner: inner, cfg: cfg, cb: cb}
}

// State returns the breaker state ("closed", "half-open" or "open").
func (g *Guarded) State() string {
	return g.cb.State().String()
}

// Register implements Registry.
//
//nolint:gocritic // meta passed by value to match the Registry interface
func (g *Guarded) Register(ctx context.Context, name string, artifact any, meta Metadata) (int, error) {
	res, err := g.do(ctx, "register", func(ctx context.Context) (any, error) {
		return g.inner.Register(ctx, name, artifact, meta)
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// Load implements Registry.
func (g *Guarded) Load(ctx context.Context, name string, version int, target any) (*Metadata, error) {
	return castMeta(g.do(ctx, "load", func(ctx context.Context) (any, error) {
		return g.inner.Load(ctx, name, version, target)
	}))
}

// LoadStage implements Registry.
func (g *Guarded) LoadStage(ctx context.Context, name, stage string, target any) (*Metadata, error) {
	return castMeta(g.do(ctx, "load_stage", func(ctx context.Context) (any, error) {
		return g.inner.LoadStage(ctx, name, stage, target)
	}))
}

// Promote implements Registry.
func (g *Guarded) Promote(ctx context.Context, name string, version int, stage string) error {
	_, err := g.do(ctx, "promote", func(ctx context.Context) (any, error) {
		return nil, g.inner.Promote(ctx, name, version, stage)
	})
	return err
}

func (g *Guarded) do(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	backoff := g.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		res, err := g.cb.Execute(func() (any, error) {
			attemptCtx := ctx
			if g.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
				defer cancel()
			}
			return fn(attemptCtx)
		})
		if err == nil {
			metrics.RecordRegistry(op, nil)
			return res, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s: %v", ErrCircuitOpen, op, err)
			metrics.RecordRegistry(op, err)
			return nil, err
		}
		if isPermanent(err) || ctx.Err() != nil {
			metrics.RecordRegistry(op, err)
			return nil, err
		}

		lastErr = err
		if attempt == g.cfg.MaxAttempts {
			break
		}
		logging.Warn().Err(err).Str("operation", op).Int("attempt", attempt).Msg("Registry call failed, retrying")

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				metrics.RecordRegistry(op, ctx.Err())
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}
	}

	err := fmt.Errorf("registry %s failed after %d attempts: %w", op, g.cfg.MaxAttempts, lastErr)
	metrics.RecordRegistry(op, err)
	return nil, err
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrInvalidName)
}

func castMeta(res any, err error) (*Metadata, error) {
	if err != nil {
		return nil, err
	}
	meta, ok := res.(*Metadata)
	if !ok {
		return nil, fmt.Errorf("registry: unexpected result type %T", res)
	}
	return meta, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
