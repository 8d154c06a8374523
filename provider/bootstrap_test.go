package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

func TestWaitForReadyReturnsWhenAvailable(t *testing.T) {
	gw := &countingGateway{available: true}

	err := WaitForReady(context.Background(), gw, time.Millisecond, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, gw.probes)
}

func TestWaitForReadyPollsUntilReady(t *testing.T) {
	gw := &delayedGateway{readyAt: time.Now().Add(15 * time.Millisecond)}

	err := WaitForReady(context.Background(), gw, 5*time.Millisecond, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gw.probes, 2)
}

// delayedGateway becomes available after a fixed point in time.
type delayedGateway struct {
	readyAt time.Time
	probes  int
}

func (g *delayedGateway) Name() string             { return "delayed" }
func (g *delayedGateway) Type() types.ProviderType { return types.ProviderOllama }

func (g *delayedGateway) Available(context.Context) bool {
	g.probes++
	return time.Now().After(g.readyAt)
}

func (g *delayedGateway) Invoke(context.Context, *types.Task, *types.HandoffContext) (string, error) {
	return "", nil
}

func TestWaitForReadyTimesOut(t *testing.T) {
	gw := &countingGateway{}

	err := WaitForReady(context.Background(), gw, 5*time.Millisecond, 20*time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
