package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/types"
)

// BreakerConfig configures the circuit breaker decorating a gateway.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerGateway wraps a Gateway with a circuit breaker. When the backend
// fails repeatedly the circuit opens and Invoke fails fast without reaching
// it, preventing retry storms. Availability probes bypass the breaker — the
// probe is itself the cheap liveness signal.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewBreakerGateway wraps inner with a circuit breaker. Zero-valued config
// fields fall back to defaults.
func NewBreakerGateway(inner Gateway, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	log := logger.With(zap.String("component", "breaker_gateway"), zap.String("provider", inner.Name()))
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "provider:" + inner.Name(),
		MaxRequests: 1, // one probe call in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerGateway{inner: inner, breaker: cb, logger: log}
}

func (g *BreakerGateway) Name() string             { return g.inner.Name() }
func (g *BreakerGateway) Type() types.ProviderType { return g.inner.Type() }

// Available delegates to the wrapped gateway.
func (g *BreakerGateway) Available(ctx context.Context) bool {
	return g.inner.Available(ctx)
}

// Invoke routes the call through the circuit breaker.
func (g *BreakerGateway) Invoke(ctx context.Context, task *types.Task, hctx *types.HandoffContext) (string, error) {
	result, err := g.breaker.Execute(func() (string, error) {
		return g.inner.Invoke(ctx, task, hctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", types.NewError(types.ErrProviderUnavailable,
				fmt.Sprintf("provider %q circuit open", g.inner.Name())).
				WithProvider(g.inner.Name()).WithCause(err)
		}
		return "", err
	}
	return result, nil
}

// State returns the current breaker state for monitoring.
func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}

var _ Gateway = (*BreakerGateway)(nil)
