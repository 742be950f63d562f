package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastBackoff(attempts int) *Backoff {
	return NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	})
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := fastBackoff(3).Retry(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := fastBackoff(3).Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastBackoff(4).Retry(context.Background(), func() error {
		calls++
		return errors.New("busy")
	})

	assert.EqualError(t, err, "busy")
	assert.Equal(t, 4, calls)
}

func TestBackoff_RetryWithPredicate_StopsOnPermanent(t *testing.T) {
	permanent := errors.New("constraint failed")
	calls := 0
	err := fastBackoff(5).RetryWithPredicate(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastBackoff(3).Retry(ctx, func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestBackoff_DelayCapped(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   3.0,
		MaxAttempts:  10,
	})

	assert.Equal(t, 10*time.Millisecond, b.GetNextDelay(1))
	assert.Equal(t, 30*time.Millisecond, b.GetNextDelay(2))
	assert.Equal(t, 50*time.Millisecond, b.GetNextDelay(3))
	assert.Equal(t, 50*time.Millisecond, b.GetNextDelay(9))
}

func TestBackoff_JitterWithinBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		d := b.GetNextDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
