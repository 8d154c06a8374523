// Package tool runs named tool functions under the shared retry primitive,
// with its own per-call-site policy and tool.execution.* events.
package tool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/localswarm/localswarm/bus"
	"github.com/localswarm/localswarm/retry"
)

// Func is a tool implementation: input in, output or error out.
type Func func(ctx context.Context, input string) (string, error)

// Executor runs tools with retry and publishes execution events.
type Executor struct {
	policy retry.Policy
	bus    bus.Bus
	logger *zap.Logger
}

// NewExecutor creates a tool executor. A nil bus disables events.
func NewExecutor(policy retry.Policy, b bus.Bus, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		policy: policy,
		bus:    b,
		logger: logger.With(zap.String("component", "tool_executor")),
	}
}

// Execute runs the named tool, retrying transient failures under the
// executor's policy. Exhaustion surfaces as a retry.ExhaustedError.
func (e *Executor) Execute(ctx context.Context, name string, fn Func, input string) (string, error) {
	notifier := &toolNotifier{executor: e, tool: name}
	runner := retry.NewExecutor(e.policy, notifier, e.logger)

	output, err := runner.RunWithRetry(ctx, func(ctx context.Context) (string, error) {
		return fn(ctx, input)
	})
	if err != nil {
		e.logger.Error("tool execution failed permanently",
			zap.String("tool", name), zap.Error(err))
		return "", err
	}
	return output, nil
}

type toolNotifier struct {
	executor *Executor
	tool     string
}

func (n *toolNotifier) RetryAttempted(attempt int, err error, delay time.Duration) {
	n.executor.logger.Warn("tool execution retry",
		zap.String("tool", n.tool),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	n.publish(&bus.ToolRetryEvent{
		Tool:       n.tool,
		Attempt:    attempt,
		Err:        err.Error(),
		DelayMs:    delay.Milliseconds(),
		Timestamp_: time.Now(),
	})
}

func (n *toolNotifier) Recovered(attempts int) {}

func (n *toolNotifier) Exhausted(attempts int, err error) {
	n.publish(&bus.ToolFailedEvent{
		Tool:       n.tool,
		Attempts:   attempts,
		Err:        err.Error(),
		Timestamp_: time.Now(),
	})
}

func (n *toolNotifier) FallbackInitiated(error) {}

func (n *toolNotifier) publish(event bus.Event) {
	if n.executor.bus != nil {
		n.executor.bus.Publish(event)
	}
}
