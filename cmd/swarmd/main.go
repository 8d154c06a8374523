// swarmd is the local swarm daemon: it wires the trust ledger, provider
// gateways, and handoff orchestrator together, registers the configured
// agents, and serves health and Prometheus metrics endpoints.
//
// Usage:
//
//	swarmd --config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/localswarm/localswarm/bus"
	"github.com/localswarm/localswarm/config"
	"github.com/localswarm/localswarm/internal/metrics"
	"github.com/localswarm/localswarm/orchestrator"
	"github.com/localswarm/localswarm/provider"
	"github.com/localswarm/localswarm/store"
	"github.com/localswarm/localswarm/trust"
	"github.com/localswarm/localswarm/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("swarmd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(cfg.Orchestrator.EventBuffer, logger)
	defer eventBus.Stop()

	collector := metrics.NewCollector("localswarm", logger)

	ledger := trust.NewLedger(cfg.Trust, logger)

	gateways := provider.Registry{
		types.ProviderOllama: provider.NewBreakerGateway(
			provider.NewOllamaGateway(cfg.Ollama, logger), provider.BreakerConfig{}, logger),
		types.ProviderNIM: provider.NewBreakerGateway(
			provider.NewNIMGateway(cfg.NIM, logger), provider.BreakerConfig{}, logger),
	}
	probes := provider.NewProbeCache(cfg.Orchestrator.ProbeInterval, logger)

	// report readiness in the background; handoffs never wait on it
	for _, gw := range gateways {
		gw := gw
		go func() {
			if err := provider.WaitForReady(ctx, gw, cfg.Orchestrator.ProbeInterval, time.Minute, logger); err != nil {
				logger.Warn("provider not ready at startup", zap.Error(err))
			}
		}()
	}

	opts := []orchestrator.Option{
		orchestrator.WithBus(eventBus),
		orchestrator.WithMetrics(collector),
		orchestrator.WithPolicy(cfg.Retry),
		orchestrator.WithLatencyTarget(cfg.Orchestrator.LatencyTarget),
		orchestrator.WithProbeCache(probes),
	}
	if cfg.Redis.Enabled {
		recordStore, err := store.NewRedisRecordStore(cfg.Redis.RedisConfig)
		if err != nil {
			return fmt.Errorf("connect record store: %w", err)
		}
		defer recordStore.Close()
		opts = append(opts, orchestrator.WithRecordSink(recordStore))
	} else {
		opts = append(opts, orchestrator.WithRecordSink(store.NewMemoryRecordStore()))
	}

	orch := orchestrator.New(ledger, gateways, logger, opts...)

	api := newAPIServer(orch, ledger, logger)
	for _, a := range cfg.Agents {
		agent := &types.Agent{
			ID:           a.ID,
			ProviderType: a.ProviderType,
			ModelName:    a.ModelName,
			Capabilities: a.Capabilities,
			Capacity:     a.Capacity,
		}
		if err := api.registerAgent(agent); err != nil {
			return fmt.Errorf("register agent %q: %w", a.ID, err)
		}
	}

	logger.Info("swarmd started",
		zap.Int("agents", len(cfg.Agents)),
		zap.String("api_addr", cfg.API.Addr),
		zap.String("metrics_addr", cfg.Metrics.Addr),
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		mux := http.NewServeMux()
		api.routes(mux)
		serveHTTP(g, ctx, &http.Server{Addr: cfg.API.Addr, Handler: mux})
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		serveHTTP(g, ctx, &http.Server{Addr: cfg.Metrics.Addr, Handler: mux})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// serveHTTP runs the server until the context is cancelled, then shuts it
// down gracefully.
func serveHTTP(g *errgroup.Group, ctx context.Context, server *http.Server) {
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
