// Package retry runs operations with bounded exponential backoff.
//
// Only errors marked with Transient are retried. Any other error is
// permanent and returned immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt failed transiently.
var ErrExhausted = errors.New("retry: budget exhausted")

// Policy holds retry configuration.
type Policy struct {
	MaxRetries     int           // Retries after the first attempt
	InitialBackoff time.Duration // Wait before the first retry
	MaxBackoff     time.Duration // Upper bound for any single wait
	Multiplier     float64       // Backoff growth factor
}

// DefaultPolicy returns sensible defaults for retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// transientError wraps errors that should be retried.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient returns true if err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Option configures Do.
type Option func(*options)

type options struct {
	notify func(attempt int, err error, wait time.Duration)
}

// WithNotify registers fn to be called before each backoff wait with the
// retry number (1-based), the transient error and the wait duration.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Do executes fn until it succeeds, fails permanently, exhausts the
// policy, or ctx is done. Context errors are returned wrapped so
// errors.Is(err, context.DeadlineExceeded) holds.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.Backoff(attempt)
			if o.notify != nil {
				o.notify(attempt, lastErr, wait)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry: %w: %w", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("retry: %w: %w", ctxErr, err)
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxRetries+1, lastErr)
}
