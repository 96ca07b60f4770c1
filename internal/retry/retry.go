// Package retry implements the single standardized retry helper used across
// the engine: retry(policy, operation) with a pluggable retryable/fatal
// classifier, built on top of github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffKind selects the delay shape between attempts.
type BackoffKind int

const (
	// Fixed retries after the same delay every time.
	Fixed BackoffKind = iota
	// Fibonacci grows the delay along the Fibonacci sequence, capped at MaxDelay.
	Fibonacci
	// Exponential doubles the delay each attempt, capped at MaxDelay.
	Exponential
)

// Policy describes how an operation should be retried.
type Policy struct {
	Backoff      BackoffKind
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int  // 0 means unlimited (bounded only by ctx, and by MaxElapsed for Exponential)
	MaxElapsed   time.Duration
	Jitter       bool
}

// FixedPolicy returns a policy that retries after a constant delay.
func FixedPolicy(delay time.Duration, maxAttempts int) Policy {
	return Policy{Backoff: Fixed, BaseDelay: delay, MaxAttempts: maxAttempts}
}

// FibonacciPolicy returns a policy that grows delays along the Fibonacci
// sequence starting at base, capped at maxDelay.
func FibonacciPolicy(base, maxDelay time.Duration, maxAttempts int) Policy {
	return Policy{Backoff: Fibonacci, BaseDelay: base, MaxDelay: maxDelay, MaxAttempts: maxAttempts}
}

// ExponentialPolicy returns a policy that doubles the delay each attempt,
// capped at maxDelay, with jitter enabled (backoff/v4's default
// randomization factor).
func ExponentialPolicy(base, maxDelay, maxElapsed time.Duration) Policy {
	return Policy{Backoff: Exponential, BaseDelay: base, MaxDelay: maxDelay, MaxElapsed: maxElapsed, Jitter: true}
}

// Classifier decides whether an error returned by Operation should be
// retried. Operations that want to force a stop return a Fatal-wrapped
// error; Classifier is a second, independent line of defense for callers
// that classify by inspecting the error value instead of wrapping it.
type Classifier func(error) Disposition

// Disposition is the classifier's verdict for one failed attempt.
type Disposition int

const (
	// Retryable means the operation may be retried per the policy.
	Retryable Disposition = iota
	// FatalDisposition means the operation must not be retried.
	FatalDisposition
)

// Operation is the unit of work retried by Do.
type Operation func(ctx context.Context) error

// fatalError marks an error as non-retryable regardless of classifier.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so that Do treats it as non-retryable even if the
// classifier would otherwise consider it Retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was produced by Fatal (directly or via wrapping).
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Do runs operation under policy, consulting classify (if non-nil) to decide
// whether each failure is retryable. A nil classify treats every
// non-Fatal-wrapped error as retryable. Every delay is a suspension point:
// ctx cancellation aborts the wait immediately.
func Do(ctx context.Context, policy Policy, classify Classifier, operation Operation) error {
	bo := newBackOff(policy)
	bo = backoff.WithContext(bo, ctx)

	attempts := 0
	var lastErr error

	op := func() error {
		attempts++
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return backoff.Permanent(err)
		}
		if classify != nil && classify(err) == FatalDisposition {
			return backoff.Permanent(err)
		}
		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("attempt %d: %w", attempts, perm.Err)
		}
		return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
	}
	return nil
}

func newBackOff(p Policy) backoff.BackOff {
	switch p.Backoff {
	case Fixed:
		return backoff.NewConstantBackOff(p.BaseDelay)
	case Fibonacci:
		return &fibonacciBackOff{base: p.BaseDelay, max: p.MaxDelay, prev: 0, cur: p.BaseDelay}
	case Exponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.BaseDelay
		eb.MaxInterval = p.MaxDelay
		eb.Multiplier = 2
		if p.MaxElapsed > 0 {
			eb.MaxElapsedTime = p.MaxElapsed
		}
		if !p.Jitter {
			eb.RandomizationFactor = 0
		}
		eb.Reset()
		return eb
	default:
		return backoff.NewConstantBackOff(p.BaseDelay)
	}
}

// fibonacciBackOff grows its interval along the Fibonacci sequence:
// gentler early retries than exponential backoff, still bounded by a
// ceiling.
type fibonacciBackOff struct {
	base, max, prev, cur time.Duration
}

func (f *fibonacciBackOff) NextBackOff() time.Duration {
	next := f.prev + f.cur
	f.prev = f.cur
	f.cur = next
	if f.max > 0 && f.cur > f.max {
		return f.max
	}
	return f.cur
}

func (f *fibonacciBackOff) Reset() {
	f.prev = 0
	f.cur = f.base
}
