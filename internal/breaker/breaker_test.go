package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	// failureThreshold=3, volumeThreshold=3; 3 consecutive failures
	// must open the circuit so the 4th call short-circuits.
	b := New(Config{
		Name:             "events",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		VolumeThreshold:  3,
		RetryTimeout:     500 * time.Millisecond,
		Timeout:          time.Second,
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), failing)
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, b.State())

	calls := 0
	_, err := b.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "the short-circuited call must never invoke the guarded function")
}

func TestBreaker_BelowVolumeThreshold_NeverOpens(t *testing.T) {
	// volumeThreshold not reached => failures do not open the circuit.
	b := New(Config{
		Name:             "events",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		VolumeThreshold:  10,
		RetryTimeout:     time.Second,
		Timeout:          time.Second,
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	for i := 0; i < 3; i++ {
		b.Execute(context.Background(), failing)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ErrorFilterExcludesCancelled(t *testing.T) {
	var errCancelled = errors.New("cancelled")
	b := New(Config{
		Name:             "events",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		VolumeThreshold:  1,
		RetryTimeout:     time.Second,
		Timeout:          time.Second,
		ErrorFilter: func(err error) bool {
			return !errors.Is(err, errCancelled)
		},
	})

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, errCancelled
		})
	}

	assert.Equal(t, StateClosed, b.State(), "filtered-out errors must never trip the breaker")
}

func TestBreaker_Fallback(t *testing.T) {
	b := New(Config{
		Name:             "events",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		VolumeThreshold:  1,
		RetryTimeout:     time.Hour,
		Timeout:          time.Second,
		Fallback: func(ctx context.Context) (any, error) {
			return "fallback-value", nil
		},
	})

	b.Execute(context.Background(), func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	result, err := b.Execute(context.Background(), func(ctx context.Context) (any, error) {
		t.Fatal("guarded function must not run while OPEN")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback-value", result)
}
