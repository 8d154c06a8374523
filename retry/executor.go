// Package retry provides the generic exponential-backoff retry primitive and
// the retry-then-fallback composition used by both tool execution and
// handoffs.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy configures a retry loop. MaxRetries is the total number of attempts,
// counted from 1.
type Policy struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DefaultPolicy returns the policy used when a call site does not override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Delay computes the backoff before retry attempt+1, where attempt counts
// from 1. The delay is base*2^(attempt-1) plus a jitter drawn uniformly from
// [0, 0.5*base], capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	backoff := p.BaseDelay << (attempt - 1)
	if backoff <= 0 || backoff > p.MaxDelay {
		// shift overflow or cap reached
		return p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(p.BaseDelay)/2 + 1))
	delay := backoff + jitter
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Operation is a zero-argument attempt. It either yields a value or fails.
type Operation func(ctx context.Context) (string, error)

// outcome is the explicit tagged result of one attempt; the retry loop
// branches on it instead of driving control flow through error panics.
type outcome struct {
	value string
	err   error
}

func (o outcome) ok() bool { return o.err == nil }

// ExhaustedError is returned when every attempt of an operation failed. It
// always wraps the last underlying error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// IsExhausted reports whether err carries an ExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// FallbackError aggregates the terminal errors of both the primary and the
// fallback operation. It is the only error surfaced when a fallback chain
// fails completely.
type FallbackError struct {
	PrimaryErr  error
	FallbackErr error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("primary failed: %v; fallback failed: %v", e.PrimaryErr, e.FallbackErr)
}

// Unwrap exposes both causes to errors.Is/errors.As.
func (e *FallbackError) Unwrap() []error {
	return []error{e.PrimaryErr, e.FallbackErr}
}

// Notifier receives retry lifecycle notifications. Implementations map them
// onto event-bus kinds per call site (tool execution vs. handoff) and must
// never block; the executor does not wait on them.
type Notifier interface {
	RetryAttempted(attempt int, err error, delay time.Duration)
	Recovered(attempts int)
	Exhausted(attempts int, err error)
	FallbackInitiated(cause error)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RetryAttempted(int, error, time.Duration) {}
func (NopNotifier) Recovered(int)                            {}
func (NopNotifier) Exhausted(int, error)                     {}
func (NopNotifier) FallbackInitiated(error)                  {}

// Executor drives operations through a Policy.
type Executor struct {
	policy   Policy
	notifier Notifier
	logger   *zap.Logger
}

// NewExecutor creates an executor. A nil notifier or logger degrades to a
// no-op.
func NewExecutor(policy Policy, notifier Notifier, logger *zap.Logger) *Executor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		policy:   policy.normalized(),
		notifier: notifier,
		logger:   logger.With(zap.String("component", "retry_executor")),
	}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy { return e.policy }

// RunWithRetry attempts op up to policy.MaxRetries times, sleeping the
// backoff delay between failed attempts (never after the last). Exhaustion
// returns an ExhaustedError wrapping the final cause.
func (e *Executor) RunWithRetry(ctx context.Context, op Operation) (string, error) {
	var last outcome

	for attempt := 1; attempt <= e.policy.MaxRetries; attempt++ {
		value, err := op(ctx)
		last = outcome{value: value, err: err}

		if last.ok() {
			if attempt > 1 {
				e.logger.Info("operation recovered", zap.Int("attempt", attempt))
				e.notifier.Recovered(attempt)
			}
			return last.value, nil
		}

		if attempt == e.policy.MaxRetries {
			break
		}

		delay := e.policy.Delay(attempt)
		e.logger.Debug("retrying operation",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(last.err),
		)
		e.notifier.RetryAttempted(attempt, last.err, delay)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	e.logger.Warn("retries exhausted",
		zap.Int("attempts", e.policy.MaxRetries),
		zap.Error(last.err),
	)
	exhausted := &ExhaustedError{Attempts: e.policy.MaxRetries, LastErr: last.err}
	e.notifier.Exhausted(e.policy.MaxRetries, last.err)
	return "", exhausted
}

// RunWithFallback retries primary under the policy; on exhaustion it invokes
// fallback exactly once. The fallback operation is expected to retry against
// its own provider internally. A double failure yields a FallbackError
// carrying both terminal causes.
func (e *Executor) RunWithFallback(ctx context.Context, primary, fallback Operation) (string, error) {
	value, primaryErr := e.RunWithRetry(ctx, primary)
	if primaryErr == nil {
		return value, nil
	}
	if fallback == nil {
		return "", primaryErr
	}

	e.logger.Warn("primary exhausted, initiating fallback", zap.Error(primaryErr))
	e.notifier.FallbackInitiated(primaryErr)

	value, fallbackErr := fallback(ctx)
	if fallbackErr == nil {
		return value, nil
	}

	return "", &FallbackError{PrimaryErr: primaryErr, FallbackErr: fallbackErr}
}
