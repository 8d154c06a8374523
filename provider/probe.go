package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProbeCache keeps a rate-limited availability snapshot per gateway. The
// snapshot feeds logging and ranking only; it never gates Invoke.
type ProbeCache struct {
	mu      sync.RWMutex
	state   map[string]bool
	limiter map[string]*rate.Limiter
	every   time.Duration
	logger  *zap.Logger
}

// NewProbeCache creates a cache that refreshes each gateway's availability at
// most once per interval.
func NewProbeCache(interval time.Duration, logger *zap.Logger) *ProbeCache {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProbeCache{
		state:   make(map[string]bool),
		limiter: make(map[string]*rate.Limiter),
		every:   interval,
		logger:  logger.With(zap.String("component", "probe_cache")),
	}
}

// Available returns the cached availability of gw, refreshing it when the
// rate limiter allows. The very first call always probes.
func (c *ProbeCache) Available(ctx context.Context, gw Gateway) bool {
	c.mu.Lock()
	lim, ok := c.limiter[gw.Name()]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.every), 1)
		c.limiter[gw.Name()] = lim
	}
	refresh := lim.Allow()
	cached := c.state[gw.Name()]
	c.mu.Unlock()

	if !refresh {
		return cached
	}

	available := gw.Available(ctx)
	c.mu.Lock()
	c.state[gw.Name()] = available
	c.mu.Unlock()

	if available != cached {
		c.logger.Info("provider availability changed",
			zap.String("provider", gw.Name()),
			zap.Bool("available", available),
		)
	}
	return available
}

// Snapshot returns the last known availability per provider name.
func (c *ProbeCache) Snapshot() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}
