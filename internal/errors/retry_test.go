package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	persistent := errors.New("persistent error")

	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return persistent
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, attempts) // Initial + 2 retries
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	attempts := 0
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return IndexError("not transient", nil)
	})

	assert.Equal(t, ErrCodeIndexFailed, GetCode(err))
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(10)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return errors.New("error")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("Retry did not observe cancellation")
	}
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		attempts++
		if attempts == 1 {
			return -1, errors.New("first fails")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetry(1), func() (string, error) {
		return "partial", errors.New("nope")
	})

	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestDefaultRetryConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Greater(t, cfg.MaxDelay, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Nil(t, cfg.ShouldRetry)
}
