// Package retry implements a bounded-attempt, bounded-duration retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

var (
	// ErrExhausted is returned when every attempt failed before the ceiling.
	ErrExhausted = errors.New("retry attempts exhausted")
	// ErrCeilingReached is returned when the cumulative time budget ran out.
	ErrCeilingReached = errors.New("retry time ceiling reached")
	// ErrAttemptTimeout marks a single attempt that exceeded its own timeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// Policy bounds a retried operation by attempt count and wall-clock time.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Delay          time.Duration
	// Ceiling caps the total time across attempts and waits. Zero disables it.
	Ceiling time.Duration
}

// DefaultPolicy returns 5 attempts of at most 5s each, 2s apart, within 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		AttemptTimeout: 5 * time.Second,
		Delay:          2 * time.Second,
		Ceiling:        10 * time.Second,
	}
}

// Validate checks that the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %v", p.AttemptTimeout)
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %v", p.Delay)
	}
	if p.Ceiling < 0 {
		return fmt.Errorf("ceiling must not be negative, got %v", p.Ceiling)
	}
	return nil
}

// Error describes a retried operation that did not succeed.
type Error struct {
	Reason   error
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *Error) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%v after %d attempts (%dms): %v", e.Reason, e.Attempts, e.Elapsed.Milliseconds(), e.Last)
	}
	return fmt.Sprintf("%v after %d attempts (%dms)", e.Reason, e.Attempts, e.Elapsed.Milliseconds())
}

// Unwrap exposes both the reason sentinel and the last attempt error.
func (e *Error) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Last}
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger
}

// NewRetrier creates a Retrier. A nil logger falls back to slog.Default().
func NewRetrier(policy Policy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, logger: logger}
}

// Policy returns the policy the retrier runs with.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs op until it succeeds, the attempts run out or the ceiling is reached.
// Each attempt receives a context bounded by the attempt timeout and the
// remaining budget. Do returns once that context expires even if op ignores it.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Value(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations producing a result. The result of the successful
// attempt is returned; results of abandoned attempts are discarded.
func Value[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	var last error
	attempts := 0

	for {
		elapsed := time.Since(start)
		remaining := r.remaining(elapsed)
		if remaining <= 0 {
			return zero, r.fail(ctx, ErrCeilingReached, attempts, elapsed, last)
		}

		attempts++
		attemptStart := time.Now()
		value, err := attempt(ctx, op, min(r.policy.AttemptTimeout, remaining))
		if err == nil {
			if attempts > 1 {
				r.logger.InfoContext(ctx, "operation succeeded after retry",
					"attempt", attempts,
					"total_duration_ms", time.Since(start).Milliseconds())
			}
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("retry cancelled: %w", ctxErr)
		}
		last = err

		r.logger.WarnContext(ctx, "operation attempt failed",
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"error", err,
			"attempt_duration_ms", time.Since(attemptStart).Milliseconds())

		elapsed = time.Since(start)
		if r.remaining(elapsed) <= 0 {
			return zero, r.fail(ctx, ErrCeilingReached, attempts, elapsed, last)
		}
		if attempts >= r.policy.MaxAttempts {
			return zero, r.fail(ctx, ErrExhausted, attempts, elapsed, last)
		}

		timer := time.NewTimer(min(r.policy.Delay, r.remaining(elapsed)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

type result[T any] struct {
	value T
	err   error
}

// attempt runs a single bounded invocation of op.
func attempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		value, err := op(attemptCtx)
		done <- result[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w: %w", ErrAttemptTimeout, res.err)
		}
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %v", ErrAttemptTimeout, timeout)
	}
}

func (r *Retrier) remaining(elapsed time.Duration) time.Duration {
	if r.policy.Ceiling <= 0 {
		return math.MaxInt64
	}
	return r.policy.Ceiling - elapsed
}

func (r *Retrier) fail(ctx context.Context, reason error, attempts int, elapsed time.Duration, last error) error {
	r.logger.ErrorContext(ctx, "operation failed permanently",
		"reason", reason.Error(),
		"attempts", attempts,
		"total_duration_ms", elapsed.Milliseconds(),
		"error", last)
	return &Error{Reason: reason, Attempts: attempts, Elapsed: elapsed, Last: last}
}
