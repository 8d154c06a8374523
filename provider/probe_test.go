package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

// countingGateway tracks availability probes.
type countingGateway struct {
	available bool
	probes    int
}

func (g *countingGateway) Name() string             { return "counting" }
func (g *countingGateway) Type() types.ProviderType { return types.ProviderOllama }

func (g *countingGateway) Available(context.Context) bool {
	g.probes++
	return g.available
}

func (g *countingGateway) Invoke(context.Context, *types.Task, *types.HandoffContext) (string, error) {
	return "", nil
}

func TestProbeCacheRateLimitsProbes(t *testing.T) {
	gw := &countingGateway{available: true}
	cache := NewProbeCache(time.Hour, zap.NewNop())

	for i := 0; i < 10; i++ {
		assert.True(t, cache.Available(context.Background(), gw))
	}
	assert.Equal(t, 1, gw.probes)
}

func TestProbeCacheRefreshesAfterInterval(t *testing.T) {
	gw := &countingGateway{available: true}
	cache := NewProbeCache(20*time.Millisecond, zap.NewNop())

	assert.True(t, cache.Available(context.Background(), gw))
	gw.available = false

	// still within the interval: cached value
	assert.True(t, cache.Available(context.Background(), gw))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, cache.Available(context.Background(), gw))
	assert.Equal(t, 2, gw.probes)
}

func TestProbeCacheSnapshot(t *testing.T) {
	gw := &countingGateway{available: true}
	cache := NewProbeCache(time.Hour, zap.NewNop())

	assert.Empty(t, cache.Snapshot())
	cache.Available(context.Background(), gw)
	assert.Equal(t, map[string]bool{"counting": true}, cache.Snapshot())
}
