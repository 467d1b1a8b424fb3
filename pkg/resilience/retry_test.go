package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Fixed(5, time.Millisecond), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRun_Exhausted(t *testing.T) {
	calls := 0
	var retried []error
	p := Fixed(4, time.Millisecond)
	p.OnRetry = func(err error, _ time.Duration) { retried = append(retried, err) }

	err := Run(context.Background(), p, func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
	assert.Len(t, retried, 3)
}

func TestRun_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	p := Fixed(5, time.Millisecond)
	p.Retryable = func(err error) bool { return errors.Is(err, errTransient) }

	calls := 0
	err := Run(context.Background(), p, func() error {
		calls++
		return fatal
	})
	assert.Equal(t, fatal, err)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 1, calls)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Run(ctx, Fixed(3, time.Second), func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestPolicy_BackOff(t *testing.T) {
	b := Exponential(5, 100*time.Millisecond, time.Second).backOff()
	assert.InDelta(t, float64(100*time.Millisecond), float64(b.NextBackOff()), float64(time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(b.NextBackOff()), float64(time.Millisecond))

	fixed := Fixed(5, 50*time.Millisecond).backOff()
	fixed.NextBackOff()
	assert.Equal(t, 50*time.Millisecond, fixed.NextBackOff())
}
