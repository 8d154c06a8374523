package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// WaitForReady polls the gateway's availability probe every interval until it
// reports true or the timeout elapses. Used while a backend container is
// still loading its model.
func WaitForReady(ctx context.Context, gw Gateway, interval, timeout time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = 1 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if gw.Available(ctx) {
			logger.Info("provider ready", zap.String("provider", gw.Name()))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("provider %q not ready after %s: %w", gw.Name(), timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
