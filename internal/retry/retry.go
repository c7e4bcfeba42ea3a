package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy retries an operation with a bounded number of attempts.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait before the next attempt, given the attempt that just failed.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether an error is worth another attempt. Nil retries every error.
	Retryable func(err error) bool
	// OnRetry is called before each wait. It may be nil.
	OnRetry func(attempt int, wait time.Duration, err error)
	// Sleep is injected for testability.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// Config is the declarative form of an exponential Policy.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// WaitError asks the policy to wait a specific duration before the next attempt.
type WaitError struct {
	Wait time.Duration
	Err  error
}

func (e *WaitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry after %s", e.Wait)
	}
	return e.Err.Error()
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// After wraps err so that the next attempt waits at least wait.
func After(wait time.Duration, err error) error {
	return &WaitError{Wait: wait, Err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable regardless of the classifier.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// New builds an exponential policy from config.
func New(cfg Config) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     Exponential(cfg.InitialBackoff, cfg.MaxBackoff),
	}
}

// Exponential doubles initial on every attempt, capped at max when max > 0.
func Exponential(initial, max time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		backoff := initial
		for i := 1; i < attempt; i++ {
			backoff *= 2
			if max > 0 && backoff > max {
				return max
			}
		}
		if max > 0 && backoff > max {
			return max
		}
		return backoff
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or attempts run out.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if op == nil {
		return fmt.Errorf("retry operation is nil")
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		var waitErr *WaitError
		if errors.As(err, &waitErr) && waitErr.Wait > wait {
			wait = waitErr.Wait
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// SleepContext waits for duration or until ctx is done.
func SleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
