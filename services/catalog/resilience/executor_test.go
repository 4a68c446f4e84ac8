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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExecutor returns an executor whose backoff sleeps are recorded
// instead of performed.
func newTestExecutor(t *testing.T, degradation *DegradationManager) (*Executor, *[]time.Duration) {
	t.Helper()
	e := NewExecutor(
		NewRegistry(DefaultCircuitBreakerConfig()),
		degradation,
		DefaultExecutorConfig(),
		nil,
	)
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	e, slept := newTestExecutor(t, nil)

	calls := 0
	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	e, slept := newTestExecutor(t, nil)

	calls := 0
	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("connection reset"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)

	stats := e.Registry().Counter("op").Stats()
	assert.Equal(t, int64(2), stats.TotalRetries)
	assert.Equal(t, int64(1), stats.SuccessfulRetries)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	e, slept := newTestExecutor(t, nil)

	calls := 0
	_, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("flaky"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2, "no backoff after the final attempt")

	stats := e.Registry().Counter("op").Stats()
	assert.Equal(t, int64(1), stats.FailedRetries)
}

func TestExecute_TerminalErrorsDoNotRetry(t *testing.T) {
	terminal := []error{
		NewValidationError(errors.New("missing field")),
		NewAuthError(errors.New("token expired")),
		context.Canceled,
		errors.New("validation failed on object"),
	}

	for _, tErr := range terminal {
		e, slept := newTestExecutor(t, nil)

		calls := 0
		_, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
			calls++
			return 0, tErr
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls, "terminal error %v must not be retried", tErr)
		assert.Empty(t, *slept)
	}
}

func TestExecute_FallbackOnExhaustion(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) ([]string, error) {
		return nil, NewTransientError(errors.New("down"))
	}, WithFallback([]string{"cached-a", "cached-b"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"cached-a", "cached-b"}, got)
}

func TestExecute_OpenBreakerRejectsImmediately(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	// Trip the breaker.
	for i := 0; i < 5; i++ {
		e.Registry().Breaker("op").RecordFailure()
	}

	calls := 0
	_, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "open breaker must not invoke the operation")
}

func TestExecute_OpenBreakerWithFallback(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	for i := 0; i < 5; i++ {
		e.Registry().Breaker("op").RecordFailure()
	}

	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		return 0, nil
	}, WithFallback(7))

	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestExecute_TimeoutSurfacesDistinctError(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	e.config.MaxRetryAttempts = 1

	_, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, WithTimeout(10*time.Millisecond))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.True(t, IsTimeout(err))
}

func TestExecute_CancelledContextStopsRetrying(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Execute(ctx, e, "op", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("flaky"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation during backoff must stop the loop")
}

func TestExecute_DegradationSkipOperation(t *testing.T) {
	dm := NewDegradationManager()
	dm.RegisterStrategy("op", DegradeSkipOperation)

	var degraded []string
	dm.OnDegrade(func(operationID string, strategy DegradationStrategy) {
		degraded = append(degraded, operationID+":"+string(strategy))
	})

	e, _ := newTestExecutor(t, dm)

	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("down"))
	})

	require.NoError(t, err, "skip_operation degrades to a successful no-op")
	assert.Zero(t, got)
	assert.Equal(t, []string{"op:skip_operation"}, degraded)
}

func TestExecute_DegradationAlternativeService(t *testing.T) {
	dm := NewDegradationManager()
	dm.RegisterStrategy("op", DegradeUseAlternative)
	dm.RegisterAlternative("op", func(ctx context.Context) (any, error) {
		return "from-alternative", nil
	})

	e, _ := newTestExecutor(t, dm)

	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (string, error) {
		return "", NewTransientError(errors.New("down"))
	})

	require.NoError(t, err)
	assert.Equal(t, "from-alternative", got)
}

func TestExecute_FallbackTakesPrecedenceOverDegradation(t *testing.T) {
	dm := NewDegradationManager()
	dm.RegisterStrategy("op", DegradeSkipOperation)

	e, _ := newTestExecutor(t, dm)

	got, err := Execute(context.Background(), e, "op", func(ctx context.Context) (string, error) {
		return "", NewTransientError(errors.New("down"))
	}, WithFallback("cached"))

	require.NoError(t, err)
	assert.Equal(t, "cached", got)
}

func TestDo_WrapsVoidOperations(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	err = e.Do(context.Background(), "op", func(ctx context.Context) error {
		return NewValidationError(errors.New("bad object"))
	})
	require.Error(t, err)
}

func TestComputeBackoff_ExponentialWithClamp(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	// Attempt 1: 1s exponential, jitter within 10%.
	d := e.computeBackoff(1)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, time.Second+100*time.Millisecond)

	// Attempt 3: 4s exponential.
	d = e.computeBackoff(3)
	assert.GreaterOrEqual(t, d, 4*time.Second)
	assert.LessOrEqual(t, d, 4*time.Second+400*time.Millisecond)

	// Attempt 10 would be 512s unclamped; must stay within 30s + 10%.
	d = e.computeBackoff(10)
	assert.GreaterOrEqual(t, d, 30*time.Second)
	assert.LessOrEqual(t, d, 33*time.Second)
}

func TestExecute_BackoffDelaysGrow(t *testing.T) {
	e, slept := newTestExecutor(t, nil)

	_, _ = Execute(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("flaky"))
	})

	require.Len(t, *slept, 2)
	assert.GreaterOrEqual(t, (*slept)[0], time.Second)
	assert.GreaterOrEqual(t, (*slept)[1], 2*time.Second)
}
