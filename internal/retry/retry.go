// Package retry runs a fallible action a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Run stops at the attempt that
// returned it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts is the number of times the action runs at most (minimum 1).
	MaxAttempts int
	// Delay is the pause between two attempts. No backoff is applied.
	Delay time.Duration
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay must be non-negative, got %v", p.Delay)
	}
	return nil
}

// Action is one attempt. attempt starts at 1.
type Action[T any] func(ctx context.Context, attempt int) (T, error)

// Predicate decides whether an attempt succeeded. A nil Predicate accepts any
// attempt that returned a nil error.
type Predicate[T any] func(result T, err error) bool

// Run executes action until isSuccess accepts its result, the attempts are
// exhausted or ctx is done. It returns the last result and whether it was a
// success.
func Run[T any](ctx context.Context, p Policy, action Action[T], isSuccess Predicate[T]) (T, bool) {
	if isSuccess == nil {
		isSuccess = func(_ T, err error) bool { return err == nil }
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result T
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return result, false
		}

		var err error
		result, err = action(ctx, attempt)
		if isSuccess(result, err) {
			return result, true
		}
		if isPermanent(err) {
			return result, false
		}

		if attempt == attempts {
			break
		}
		if !sleep(ctx, p.Delay) {
			return result, false
		}
	}
	return result, false
}

// Do is Run for actions that only report an error.
func Do(ctx context.Context, p Policy, action func(ctx context.Context, attempt int) error) bool {
	_, ok := Run(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, action(ctx, attempt)
	}, nil)
	return ok
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
