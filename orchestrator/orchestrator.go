// Package orchestrator drives a task through a trust-ranked primary
// provider, a retry/backoff policy, and a fallback provider, and feeds every
// attempted agent's outcome back into the trust ledger exactly once.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/localswarm/localswarm/bus"
	"github.com/localswarm/localswarm/internal/metrics"
	"github.com/localswarm/localswarm/provider"
	"github.com/localswarm/localswarm/retry"
	"github.com/localswarm/localswarm/trust"
	"github.com/localswarm/localswarm/types"
)

// DefaultLatencyTarget is the wall-clock budget a handoff should complete
// within, including any fallback overhead.
const DefaultLatencyTarget = 2000 * time.Millisecond

// RecordSink persists finalized handoff records. Persistence is best-effort;
// a failing sink never fails the handoff.
type RecordSink interface {
	SaveRecord(ctx context.Context, record *HandoffRecord) error
}

// Orchestrator is the top-level entry point of the swarm core.
type Orchestrator struct {
	ledger        *trust.Ledger
	gateways      provider.Registry
	probes        *provider.ProbeCache
	bus           bus.Bus
	metrics       *metrics.Collector
	sink          RecordSink
	policy        retry.Policy
	latencyTarget time.Duration
	tracer        trace.Tracer
	logger        *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus attaches the event bus.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithMetrics attaches the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithRecordSink attaches the handoff record store.
func WithRecordSink(s RecordSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithPolicy overrides the retry policy for handoffs.
func WithPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithLatencyTarget overrides the latency SLA.
func WithLatencyTarget(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.latencyTarget = d
		}
	}
}

// WithProbeCache attaches the advisory availability cache.
func WithProbeCache(c *provider.ProbeCache) Option {
	return func(o *Orchestrator) { o.probes = c }
}

// New creates an orchestrator over the given ledger and gateways.
func New(ledger *trust.Ledger, gateways provider.Registry, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		ledger:        ledger,
		gateways:      gateways,
		policy:        retry.DefaultPolicy(),
		latencyTarget: DefaultLatencyTarget,
		tracer:        otel.Tracer("localswarm/orchestrator"),
		logger:        logger.With(zap.String("component", "handoff_orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handoff routes one task to the best-trusted candidate agent, retrying
// transient failures and falling back to the alternate provider on
// exhaustion. Every attempted agent's outcome is fed back into the trust
// ledger exactly once.
func (o *Orchestrator) Handoff(ctx context.Context, task *types.Task, hctx *types.HandoffContext, candidates []*types.Agent) (*HandoffRecord, error) {
	ctx, span := o.tracer.Start(ctx, "handoff",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", task.Type),
		))
	defer span.End()

	ranked, err := o.ledger.RankAgentsByTrust(ctx, candidates, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ranking failed")
		return nil, err
	}
	if len(ranked) == 0 {
		span.SetStatus(codes.Error, "no agent available")
		return nil, ErrNoAgentAvailable
	}

	target := ranked[0]
	primaryGW, ok := o.gateways.Lookup(target.Agent.ProviderType)
	if !ok {
		span.SetStatus(codes.Error, "no gateway for provider")
		return nil, ErrNoAgentAvailable
	}

	fallbackAgent, fallbackGW := o.pickFallback(ranked, target.Agent.ProviderType)

	record := &HandoffRecord{
		HandoffID:     uuid.New().String(),
		TargetAgentID: target.Agent.ID,
		TaskID:        task.ID,
		StartedAt:     time.Now(),
	}
	if hctx != nil {
		record.SourceAgentID = hctx.SourceAgentID
	}
	if fallbackAgent != nil {
		record.FallbackAgentID = fallbackAgent.ID
	}
	span.SetAttributes(
		attribute.String("handoff.id", record.HandoffID),
		attribute.String("agent.id", target.Agent.ID),
		attribute.String("provider.primary", primaryGW.Name()),
	)

	o.probeAdvisory(ctx, primaryGW, fallbackGW)

	o.logger.Info("handoff initiated",
		zap.String("handoff_id", record.HandoffID),
		zap.String("task_id", task.ID),
		zap.String("agent_id", target.Agent.ID),
		zap.String("provider", primaryGW.Name()),
		zap.String("recommendation", string(target.Evaluation.Recommendation)),
	)
	o.publish(&bus.HandoffInitiatedEvent{
		HandoffID:  record.HandoffID,
		TaskID:     task.ID,
		AgentID:    target.Agent.ID,
		Provider:   primaryGW.Name(),
		Timestamp_: time.Now(),
	})

	primaryOp := func(ctx context.Context) (string, error) {
		record.AttemptsOnPrimary++
		return primaryGW.Invoke(ctx, task, hctx)
	}

	var fallbackOp retry.Operation
	if fallbackGW != nil {
		inner := retry.NewExecutor(o.policy, o.retryNotifier(record, fallbackGW.Name()), o.logger)
		fallbackOp = func(ctx context.Context) (string, error) {
			return inner.RunWithRetry(ctx, func(ctx context.Context) (string, error) {
				record.AttemptsOnFallback++
				return fallbackGW.Invoke(ctx, task, hctx)
			})
		}
	}

	executor := retry.NewExecutor(o.policy, o.handoffNotifier(record, task, primaryGW, fallbackGW), o.logger)
	output, err := executor.RunWithFallback(ctx, primaryOp, fallbackOp)

	record.CompletedAt = time.Now()
	record.DurationMs = record.CompletedAt.Sub(record.StartedAt).Milliseconds()
	record.LatencyWithinTarget = record.CompletedAt.Sub(record.StartedAt) < o.latencyTarget

	if err != nil {
		return o.finalizeFailure(ctx, span, record, task, target.Agent, fallbackAgent, primaryGW, fallbackGW, err)
	}
	return o.finalizeSuccess(ctx, span, record, task, target.Agent, fallbackAgent, primaryGW, fallbackGW, output)
}

// pickFallback selects the highest-ranked registered candidate of the
// opposite provider type, when a gateway for that type exists.
func (o *Orchestrator) pickFallback(ranked []trust.RankedAgent, primary types.ProviderType) (*types.Agent, provider.Gateway) {
	gw, ok := o.gateways.Lookup(primary.Opposite())
	if !ok {
		return nil, nil
	}
	for _, r := range ranked {
		if r.Agent.ProviderType == primary.Opposite() {
			return r.Agent, gw
		}
	}
	return nil, nil
}

// probeAdvisory refreshes availability telemetry. The probe result never
// gates invocation: availability can change between probe and call.
func (o *Orchestrator) probeAdvisory(ctx context.Context, gws ...provider.Gateway) {
	for _, gw := range gws {
		if gw == nil {
			continue
		}
		var available bool
		if o.probes != nil {
			available = o.probes.Available(ctx, gw)
		} else {
			available = gw.Available(ctx)
		}
		if o.metrics != nil {
			o.metrics.RecordProviderAvailability(gw.Name(), available)
		}
		if !available {
			o.logger.Warn("provider reported unavailable, attempting anyway",
				zap.String("provider", gw.Name()))
		}
	}
}

func (o *Orchestrator) finalizeSuccess(ctx context.Context, span trace.Span, record *HandoffRecord, task *types.Task, target, fallbackAgent *types.Agent, primaryGW, fallbackGW provider.Gateway, output string) (*HandoffRecord, error) {
	record.Output = output
	usedFallback := record.AttemptsOnFallback > 0

	perf := o.performanceScore(record)
	if usedFallback {
		record.ProviderUsed = fallbackGW.Name()
		// the primary agent exhausted its retries and still counts as a failure
		o.updateTrust(target.ID, trust.Outcome{
			Success: false, PerformanceScore: 0, TaskID: task.ID, Provider: primaryGW.Name(),
		})
		o.updateTrust(fallbackAgent.ID, trust.Outcome{
			Success: true, PerformanceScore: perf, TaskID: task.ID, Provider: fallbackGW.Name(),
		})
		o.publish(&bus.FallbackSucceededEvent{
			HandoffID:  record.HandoffID,
			TaskID:     task.ID,
			Provider:   fallbackGW.Name(),
			DurationMs: record.DurationMs,
			Timestamp_: time.Now(),
		})
	} else {
		record.ProviderUsed = primaryGW.Name()
		o.updateTrust(target.ID, trust.Outcome{
			Success: true, PerformanceScore: perf, TaskID: task.ID, Provider: primaryGW.Name(),
		})
	}

	if o.metrics != nil {
		o.metrics.RecordHandoff(record.ProviderUsed, "success", time.Duration(record.DurationMs)*time.Millisecond)
	}
	span.SetAttributes(attribute.String("provider.used", record.ProviderUsed))
	span.SetStatus(codes.Ok, "")

	o.logger.Info("handoff completed",
		zap.String("handoff_id", record.HandoffID),
		zap.String("provider_used", record.ProviderUsed),
		zap.Int64("duration_ms", record.DurationMs),
		zap.Bool("within_target", record.LatencyWithinTarget),
	)
	o.persist(ctx, record)
	return record, nil
}

func (o *Orchestrator) finalizeFailure(ctx context.Context, span trace.Span, record *HandoffRecord, task *types.Task, target, fallbackAgent *types.Agent, primaryGW, fallbackGW provider.Gateway, cause error) (*HandoffRecord, error) {
	failure := &PermanentFailureError{
		TaskID:          task.ID,
		PrimaryProvider: primaryGW.Name(),
		PrimaryErr:      cause,
	}
	if fe, ok := cause.(*retry.FallbackError); ok {
		failure.PrimaryErr = fe.PrimaryErr
		failure.FallbackErr = fe.FallbackErr
		failure.FallbackProvider = fallbackGW.Name()
	}
	record.Error = failure.Error()

	o.updateTrust(target.ID, trust.Outcome{
		Success: false, PerformanceScore: 0, TaskID: task.ID, Provider: primaryGW.Name(),
	})
	if fallbackAgent != nil && record.AttemptsOnFallback > 0 {
		o.updateTrust(fallbackAgent.ID, trust.Outcome{
			Success: false, PerformanceScore: 0, TaskID: task.ID, Provider: fallbackGW.Name(),
		})
	}

	fallbackMsg := ""
	if failure.FallbackErr != nil {
		fallbackMsg = failure.FallbackErr.Error()
	}
	o.publish(&bus.HandoffFailedEvent{
		HandoffID:   record.HandoffID,
		TaskID:      task.ID,
		PrimaryErr:  failure.PrimaryErr.Error(),
		FallbackErr: fallbackMsg,
		DurationMs:  record.DurationMs,
		Timestamp_:  time.Now(),
	})
	if o.metrics != nil {
		o.metrics.RecordHandoff(primaryGW.Name(), "failed", time.Duration(record.DurationMs)*time.Millisecond)
	}
	span.RecordError(failure)
	span.SetStatus(codes.Error, "handoff failed permanently")

	o.logger.Error("handoff failed permanently",
		zap.String("handoff_id", record.HandoffID),
		zap.String("task_id", task.ID),
		zap.Error(failure),
	)
	o.persist(ctx, record)
	return record, failure
}

// performanceScore derives a 0..1 score from the handoff duration: full score
// within the latency target, decaying with the overshoot ratio but floored so
// a slow success still counts as a success.
func (o *Orchestrator) performanceScore(record *HandoffRecord) float64 {
	if record.LatencyWithinTarget {
		return 1.0
	}
	ratio := float64(o.latencyTarget.Milliseconds()) / float64(record.DurationMs)
	if ratio < 0.5 {
		return 0.5
	}
	return ratio
}

func (o *Orchestrator) updateTrust(agentID string, outcome trust.Outcome) {
	if err := o.ledger.UpdateTrust(agentID, outcome); err != nil {
		o.logger.Warn("trust update failed", zap.String("agent_id", agentID), zap.Error(err))
		return
	}
	if o.metrics != nil {
		if record, err := o.ledger.Get(agentID); err == nil {
			o.metrics.RecordTrustScore(agentID, record.TrustScore)
		}
	}
}

func (o *Orchestrator) publish(event bus.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

func (o *Orchestrator) persist(ctx context.Context, record *HandoffRecord) {
	if o.sink == nil {
		return
	}
	if err := o.sink.SaveRecord(ctx, record); err != nil {
		o.logger.Warn("handoff record persistence failed",
			zap.String("handoff_id", record.HandoffID), zap.Error(err))
	}
}

// handoffNotifier maps retry lifecycle notifications of the primary loop to
// bus events and metrics.
func (o *Orchestrator) handoffNotifier(record *HandoffRecord, task *types.Task, primaryGW, fallbackGW provider.Gateway) retry.Notifier {
	return &handoffNotifier{o: o, record: record, task: task, primary: primaryGW, fallback: fallbackGW}
}

type handoffNotifier struct {
	o        *Orchestrator
	record   *HandoffRecord
	task     *types.Task
	primary  provider.Gateway
	fallback provider.Gateway
}

func (n *handoffNotifier) RetryAttempted(attempt int, err error, delay time.Duration) {
	if n.o.metrics != nil {
		n.o.metrics.RecordRetry("handoff")
	}
}

func (n *handoffNotifier) Recovered(attempts int) {
	n.o.publish(&bus.HandoffRecoveredEvent{
		HandoffID:  n.record.HandoffID,
		TaskID:     n.task.ID,
		Provider:   n.primary.Name(),
		Attempts:   attempts,
		Timestamp_: time.Now(),
	})
}

func (n *handoffNotifier) Exhausted(attempts int, err error) {}

func (n *handoffNotifier) FallbackInitiated(cause error) {
	if n.fallback == nil {
		return
	}
	// the warning must name the fallback provider so operators can spot
	// degradation before the final error
	n.o.logger.Warn("falling back to alternate provider",
		zap.String("handoff_id", n.record.HandoffID),
		zap.String("fallback_provider", n.fallback.Name()),
		zap.Error(cause),
	)
	if n.o.metrics != nil {
		n.o.metrics.RecordFallback(n.fallback.Name())
	}
	n.o.publish(&bus.FallbackInitiatedEvent{
		HandoffID:  n.record.HandoffID,
		TaskID:     n.task.ID,
		Provider:   n.fallback.Name(),
		Cause:      cause.Error(),
		Timestamp_: time.Now(),
	})
}

// retryNotifier is the notifier for the fallback's inner retry loop.
func (o *Orchestrator) retryNotifier(record *HandoffRecord, providerName string) retry.Notifier {
	return &fallbackRetryNotifier{o: o}
}

type fallbackRetryNotifier struct {
	o *Orchestrator
}

func (n *fallbackRetryNotifier) RetryAttempted(attempt int, err error, delay time.Duration) {
	if n.o.metrics != nil {
		n.o.metrics.RecordRetry("handoff_fallback")
	}
}

func (n *fallbackRetryNotifier) Recovered(attempts int)        {}
func (n *fallbackRetryNotifier) Exhausted(int, error)          {}
func (n *fallbackRetryNotifier) FallbackInitiated(cause error) {}
