package store

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds re-attempts of transactional writes after an
// optimistic-concurrency conflict. Only transient failures retry; anything
// else surfaces immediately. Exhaustion yields ErrTooMuchContention.
type RetryPolicy struct {
	// MaxAttempts caps total attempts, including the first.
	MaxAttempts int

	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the standard contention budget: 5 attempts
// with a fixed 5 second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 5 * time.Second}
}

func (p RetryPolicy) validate() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// Do runs fn until it succeeds, fails non-transiently, or the attempt
// budget is exhausted. The backoff wait is cancellable through ctx.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	p = p.validate()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return WrapError(StatusTooMuchContention, "write contention retry budget exhausted", err)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as an aborted/unavailable-class failure eligible for
// contention retry. Backend adapters apply it when mapping optimistic
// concurrency conflicts.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries the transient marker.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
