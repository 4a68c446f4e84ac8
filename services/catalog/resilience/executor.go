// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// ExecutorConfig configures retry behavior.
type ExecutorConfig struct {
	// MaxRetryAttempts is the total number of attempts (default: 3).
	MaxRetryAttempts int

	// BaseRetryDelay seeds the exponential backoff (default: 1s).
	BaseRetryDelay time.Duration

	// MaxRetryDelay clamps the exponential component (default: 30s).
	MaxRetryDelay time.Duration
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetryAttempts: 3,
		BaseRetryDelay:   time.Second,
		MaxRetryDelay:    30 * time.Second,
	}
}

// Executor wraps operations with circuit-breaker gating, bounded retry
// with jittered exponential backoff, an optional timeout race, and
// graceful degradation.
//
// Every remote call and persistence batch in the sync engine runs through
// an Executor. Breakers and retry counters are looked up in the injected
// Registry by operation identifier; operation identifiers are per logical
// call site ("remote.fetch_full", "store.flush", ...).
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	registry    *Registry
	degradation *DegradationManager
	config      ExecutorConfig
	logger      *slog.Logger

	// sleep is the backoff sleeper; overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor.
//
// Inputs:
//
//	registry - Breaker/counter registry. Must not be nil.
//	degradation - Degradation strategies. May be nil (no degradation).
//	config - Retry configuration; zero fields take defaults.
//	logger - Logger. If nil, slog.Default() is used.
func NewExecutor(registry *Registry, degradation *DegradationManager, config ExecutorConfig, logger *slog.Logger) *Executor {
	if config.MaxRetryAttempts <= 0 {
		config.MaxRetryAttempts = 3
	}
	if config.BaseRetryDelay <= 0 {
		config.BaseRetryDelay = time.Second
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:    registry,
		degradation: degradation,
		config:      config,
		logger:      logger.With(slog.String("component", "recovery_executor")),
		sleep:       sleepContext,
	}
}

// Registry returns the injected registry (for status reporting).
func (e *Executor) Registry() *Registry { return e.registry }

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type execOptions struct {
	timeout     time.Duration
	fallback    any
	hasFallback bool
}

// Option configures a single execution.
type Option func(*execOptions)

// WithTimeout races the operation against a timer. The loser is cancelled
// through the context; a timeout surfaces as ErrOperationTimeout, which is
// retryable like any transient failure.
func WithTimeout(d time.Duration) Option {
	return func(o *execOptions) { o.timeout = d }
}

// WithFallback supplies a value returned instead of the error when the
// breaker denies execution or all attempts fail. The value must be of the
// operation's result type.
func WithFallback(v any) Option {
	return func(o *execOptions) {
		o.fallback = v
		o.hasFallback = true
	}
}

// -----------------------------------------------------------------------------
// Execution
// -----------------------------------------------------------------------------

// Execute runs op with full recovery semantics and returns its result.
//
// Description:
//
//	Gate on the operation's circuit breaker (ErrCircuitOpen if denied and
//	no fallback was supplied). Then run up to MaxRetryAttempts attempts:
//	success records on breaker and counter and returns immediately;
//	failure records, classifies, and either backs off and retries or
//	stops on a terminal error. After exhaustion the fallback (if any) is
//	returned, then the degradation strategy is consulted, and finally the
//	last error propagates wrapped in ErrRetriesExhausted.
//
// Thread Safety: Safe for concurrent use.
func Execute[T any](ctx context.Context, e *Executor, operationID string, op func(context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}

	breaker := e.registry.Breaker(operationID)
	counter := e.registry.Counter(operationID)

	if !breaker.CanExecute() {
		breakerRejectionsTotal.WithLabelValues(operationID).Inc()
		if o.hasFallback {
			return assertFallback[T](operationID, o.fallback)
		}
		return zero, fmt.Errorf("%s: %w", operationID, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetryAttempts; attempt++ {
		result, err := runAttempt(ctx, op, o.timeout)
		if err == nil {
			breaker.RecordSuccess()
			counter.RecordSuccess()
			return result, nil
		}

		breaker.RecordFailure()
		counter.RecordFailure()
		retryAttemptsTotal.WithLabelValues(operationID).Inc()
		lastErr = err

		if !IsRetryable(err) {
			e.logger.Warn("terminal error, not retrying",
				slog.String("operation", operationID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			break
		}

		if attempt < e.config.MaxRetryAttempts {
			delay := e.computeBackoff(attempt)
			e.logger.Warn("retrying after backoff",
				slog.String("operation", operationID),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", e.config.MaxRetryAttempts),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	counter.RecordFinalFailure()
	finalFailuresTotal.WithLabelValues(operationID).Inc()

	if o.hasFallback {
		e.logger.Warn("returning fallback after failed attempts",
			slog.String("operation", operationID),
			slog.String("error", lastErr.Error()),
		)
		return assertFallback[T](operationID, o.fallback)
	}

	if v, handled, err := degrade[T](ctx, e, operationID); handled {
		return v, err
	}

	return zero, fmt.Errorf("%s: %w: %w", operationID, ErrRetriesExhausted, lastErr)
}

// Do runs an operation that yields no value.
func (e *Executor) Do(ctx context.Context, operationID string, op func(context.Context) error, opts ...Option) error {
	_, err := Execute(ctx, e, operationID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// degrade applies the registered degradation strategy, if any.
//
// ReturnCached and ReturnDefault only make sense with a supplied fallback,
// which was already handled by the caller; without one they cannot produce
// a value and the error propagates.
func degrade[T any](ctx context.Context, e *Executor, operationID string) (T, bool, error) {
	var zero T
	if e.degradation == nil {
		return zero, false, nil
	}
	strategy, ok := e.degradation.StrategyFor(operationID)
	if !ok {
		return zero, false, nil
	}

	switch strategy {
	case DegradeSkipOperation:
		e.degradation.notifyDegrade(operationID, strategy)
		e.logger.Warn("degradation: skipping operation",
			slog.String("operation", operationID),
		)
		return zero, true, nil

	case DegradeUseAlternative:
		alt, ok := e.degradation.AlternativeFor(operationID)
		if !ok {
			return zero, false, nil
		}
		e.degradation.notifyDegrade(operationID, strategy)
		e.logger.Warn("degradation: using alternative service",
			slog.String("operation", operationID),
		)
		raw, err := alt(ctx)
		if err != nil {
			return zero, true, fmt.Errorf("%s: alternative service: %w", operationID, err)
		}
		v, ok := raw.(T)
		if !ok {
			return zero, true, fmt.Errorf("%s: alternative service returned %T", operationID, raw)
		}
		return v, true, nil

	default:
		// ReturnCached / ReturnDefault without a supplied fallback.
		return zero, false, nil
	}
}

// assertFallback converts the untyped fallback to the result type.
func assertFallback[T any](operationID string, fallback any) (T, error) {
	var zero T
	if fallback == nil {
		return zero, nil
	}
	v, ok := fallback.(T)
	if !ok {
		return zero, fmt.Errorf("%s: fallback value is %T, not the operation result type", operationID, fallback)
	}
	return v, nil
}

// runAttempt invokes op, racing it against a timer when a timeout is set.
// The loser is cancelled via context.
func runAttempt[T any](ctx context.Context, op func(context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(attemptCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("after %v: %w", timeout, ErrOperationTimeout)
		}
		return zero, attemptCtx.Err()
	}
}

// computeBackoff returns the delay before the given retry.
//
// delay = min(base * 2^(attempt-1), max) + jitter, with jitter uniform in
// [0, 0.1 * exponential]. The exponential component is clamped before
// jitter is added, so attempt 10 at base 1s / max 30s stays within
// 30s + 10%.
func (e *Executor) computeBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := e.config.BaseRetryDelay
	for i := 1; i < attempt; i++ {
		exp *= 2
		if exp >= e.config.MaxRetryDelay {
			exp = e.config.MaxRetryDelay
			break
		}
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(exp))
	return exp + jitter
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
