// Package breaker implements per-dependency failure isolation on top of
// github.com/sony/gobreaker: a thin wrapper exposing Execute(ctx, fn)
// with the failureThreshold/successThreshold/volumeThreshold/
// retryTimeout/timeout/errorFilter parameter set, plus an optional
// fallback callback invoked while the circuit is open.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

// State mirrors gobreaker's three-state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrorFilter decides whether an error returned by a guarded call
// should count as a circuit-breaker failure (e.g. Cancelled errors
// should not).
type ErrorFilter func(error) bool

// Config carries the breaker tunables, mirroring config.CircuitConfig's
// field set.
type Config struct {
	Name             string
	FailureThreshold uint32
	SuccessThreshold uint32
	VolumeThreshold  uint32
	RetryTimeout     time.Duration
	Timeout          time.Duration
	ErrorFilter      ErrorFilter
	// Fallback, if set, is invoked instead of returning CircuitOpen when
	// a call short-circuits.
	Fallback func(ctx context.Context) (any, error)
}

// Breaker wraps a gobreaker.CircuitBreaker[any], translating its state
// machine into the pipeline's error vocabulary (CircuitOpen error,
// State() string) and applying the optional ErrorFilter/Fallback.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker[any]
	filter ErrorFilter
	fallback func(ctx context.Context) (any, error)
}

// New constructs a Breaker from cfg.
func New(cfg Config) *Breaker {
	filter := cfg.ErrorFilter
	if filter == nil {
		filter = func(error) bool { return true }
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0,
		Timeout:     cfg.RetryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.VolumeThreshold {
				return false
			}
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Errors the filter excludes (e.g. Cancelled) are treated as
			// successes for trip-counting purposes: they should not push
			// the breaker toward OPEN.
			return !filter(err)
		},
	}

	return &Breaker{
		cb:       gobreaker.NewCircuitBreaker[any](settings),
		filter:   filter,
		fallback: cfg.Fallback,
	}
}

// Execute runs fn under the breaker's protection. A per-call timeout is
// the caller's responsibility via ctx; Execute itself only adds the
// OPEN/HALF_OPEN/CLOSED gating.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		if b.fallback != nil {
			return b.fallback(ctx)
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrCircuitOpen, b.cb.Name())
	}
	return result, err
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts exposes the breaker's rolling counters for metrics/verification.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
