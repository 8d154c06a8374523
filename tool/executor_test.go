package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/bus"
	"github.com/localswarm/localswarm/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, BaseDelay: 1 * time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestExecuteReturnsToolOutput(t *testing.T) {
	exec := NewExecutor(fastPolicy(), nil, zap.NewNop())

	out, err := exec.Execute(context.Background(), "search", func(ctx context.Context, input string) (string, error) {
		return "results for " + input, nil
	}, "golang")

	require.NoError(t, err)
	assert.Equal(t, "results for golang", out)
}

func TestExecuteRetriesAndPublishesRetryEvents(t *testing.T) {
	eventBus := bus.New(10, zap.NewNop())
	defer eventBus.Stop()
	retries := make(chan bus.Event, 2)
	eventBus.Subscribe(bus.KindToolExecutionRetry, func(e bus.Event) { retries <- e })

	exec := NewExecutor(fastPolicy(), eventBus, zap.NewNop())

	calls := 0
	out, err := exec.Execute(context.Background(), "fetch", func(ctx context.Context, input string) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("timeout")
		}
		return "page", nil
	}, "http://example.test")

	require.NoError(t, err)
	assert.Equal(t, "page", out)
	assert.Equal(t, 2, calls)

	select {
	case e := <-retries:
		event, ok := e.(*bus.ToolRetryEvent)
		require.True(t, ok)
		assert.Equal(t, "fetch", event.Tool)
		assert.Equal(t, 1, event.Attempt)
	case <-time.After(time.Second):
		t.Fatal("retry event not published")
	}
}

func TestExecuteExhaustionPublishesFailureEvent(t *testing.T) {
	eventBus := bus.New(10, zap.NewNop())
	defer eventBus.Stop()
	failures := make(chan bus.Event, 1)
	eventBus.Subscribe(bus.KindToolExecutionFailed, func(e bus.Event) { failures <- e })

	exec := NewExecutor(fastPolicy(), eventBus, zap.NewNop())

	_, err := exec.Execute(context.Background(), "broken", func(ctx context.Context, input string) (string, error) {
		return "", errors.New("always fails")
	}, "")

	require.Error(t, err)
	assert.True(t, retry.IsExhausted(err))

	select {
	case e := <-failures:
		event, ok := e.(*bus.ToolFailedEvent)
		require.True(t, ok)
		assert.Equal(t, "broken", event.Tool)
		assert.Equal(t, 3, event.Attempts)
	case <-time.After(time.Second):
		t.Fatal("failure event not published")
	}
}
