// Package retry reruns object-store operations with capped exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls how often and how long an operation is retried.
type Policy struct {
	Attempts int           // total tries, 0 retries until ctx is done
	Base     time.Duration // first wait
	Cap      time.Duration // longest wait
	Factor   float64       // growth per attempt
	Jitter   float64       // fraction of each wait randomized, 0-1

	// Transient reports whether err is worth another try. Nil means
	// only errors marked with Transient are retried.
	Transient func(error) bool

	// OnRetry, when set, is called before every wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy is three tries starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     100 * time.Millisecond,
		Cap:      10 * time.Second,
		Factor:   2,
		Jitter:   0.1,
	}
}

// WithTransient returns a copy of p that retries errors matched by fn.
func (p Policy) WithTransient(fn func(error) bool) Policy {
	p.Transient = fn
	return p
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Transient(nil) is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

func (p Policy) retryable(err error) bool {
	if p.Transient != nil {
		return p.Transient(err)
	}
	return IsTransient(err)
}

// delay grows wait by Factor, clamps it to Cap and applies jitter.
func (p Policy) delay(prev time.Duration) time.Duration {
	next := p.Base
	if prev > 0 {
		next = prev
		if p.Factor > 1 {
			next = time.Duration(float64(prev) * p.Factor)
		}
	}
	if p.Cap > 0 && next > p.Cap {
		next = p.Cap
	}
	return next
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*p.Jitter*(rand.Float64()*2-1))
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends. A Transient marker is stripped from the returned error.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := Value(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	var wait time.Duration

	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) || (p.Attempts > 0 && attempt >= p.Attempts) {
			return zero, unmark(err)
		}

		wait = p.delay(wait)
		sleep := p.jittered(wait)
		if p.OnRetry != nil {
			p.OnRetry(attempt, sleep, err)
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

func unmark(err error) error {
	var t transientError
	if errors.As(err, &t) {
		return t.err
	}
	return err
}
