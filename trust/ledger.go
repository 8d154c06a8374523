// Package trust scores, updates, and ranks agents. The ledger is the only
// shared mutable state in the swarm core; every read-modify-write of an
// agent's record is serialized behind a per-agent lock so concurrent outcome
// updates are never lost.
package trust

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/localswarm/localswarm/types"
)

// Config tunes evaluation thresholds and the trust update rule. Thresholds
// are configuration, not constants, so deployments can tune them.
type Config struct {
	// LearningRate controls how far each outcome moves the score.
	LearningRate float64 `yaml:"learning_rate"`
	// TrustThreshold is the blended score above which the recommendation is
	// "trust".
	TrustThreshold float64 `yaml:"trust_threshold"`
	// DistrustThreshold is the blended score below which the recommendation
	// is "distrust".
	DistrustThreshold float64 `yaml:"distrust_threshold"`
	// FailureTarget is the score a failed outcome pulls toward, regardless of
	// the raw performance score.
	FailureTarget float64 `yaml:"failure_target"`
	// TrustWeight and CapabilityWeight blend evaluation and capability fit in
	// RankAgentsByTrust.
	TrustWeight      float64 `yaml:"trust_weight"`
	CapabilityWeight float64 `yaml:"capability_weight"`
	// SimilarLimit is how many similar past tasks the retrieval collaborator
	// is asked for.
	SimilarLimit int `yaml:"similar_limit"`
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:      0.1,
		TrustThreshold:    0.7,
		DistrustThreshold: 0.4,
		FailureTarget:     0.0,
		TrustWeight:       0.7,
		CapabilityWeight:  0.3,
		SimilarLimit:      5,
	}
}

func (c Config) normalized() Config {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		c.LearningRate = 0.1
	}
	if c.TrustThreshold <= 0 {
		c.TrustThreshold = 0.7
	}
	if c.DistrustThreshold <= 0 {
		c.DistrustThreshold = 0.4
	}
	if c.FailureTarget < 0 {
		c.FailureTarget = 0
	}
	if c.TrustWeight <= 0 {
		c.TrustWeight = 0.7
	}
	if c.CapabilityWeight <= 0 {
		c.CapabilityWeight = 0.3
	}
	if c.SimilarLimit <= 0 {
		c.SimilarLimit = 5
	}
	return c
}

// Outcome is the result of one completed handoff fed back into the ledger.
type Outcome struct {
	Success          bool    `json:"success"`
	PerformanceScore float64 `json:"performance_score"` // 0..1
	TaskID           string  `json:"task_id,omitempty"`
	Provider         string  `json:"provider,omitempty"`
}

// HistoryEntry is an append-only record of one applied outcome.
type HistoryEntry struct {
	Outcome    Outcome   `json:"outcome"`
	Delta      float64   `json:"delta"`
	ScoreAfter float64   `json:"score_after"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentTrust is the per-agent trust record. TrustScore is always within
// [0,1]; SkillLevels are monotonically non-decreasing; History is never
// pruned here — pruning is an external-memory concern.
type AgentTrust struct {
	AgentID                string             `json:"agent_id"`
	TrustScore             float64            `json:"trust_score"`
	SuccessfulInteractions int                `json:"successful_interactions"`
	TotalInteractions      int                `json:"total_interactions"`
	SkillLevels            map[string]float64 `json:"skill_levels"`
	History                []HistoryEntry     `json:"history"`
}

// Recommendation is the verdict of an evaluation.
type Recommendation string

const (
	RecommendTrust    Recommendation = "trust"
	RecommendDistrust Recommendation = "distrust"
	RecommendCautious Recommendation = "cautious"
)

// Trend classifies the direction of recent trust updates.
type Trend string

const (
	TrendNeutral Trend = "neutral"
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Factor is one named contribution to an evaluation.
type Factor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Evaluation is the ephemeral output of EvaluateTrust. It is derived, never
// stored.
type Evaluation struct {
	AgentID        string         `json:"agent_id"`
	TrustScore     float64        `json:"trust_score"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	Factors        []Factor       `json:"factors"`
}

// SimilarTask is one past task returned by the retrieval collaborator.
type SimilarTask struct {
	TaskID     string
	Similarity float64 // 0..1
	Success    bool
}

// TaskRetriever is the optional retrieval collaborator enriching evaluations
// with a historical-similarity factor. Absence degrades gracefully to a
// lower-confidence evaluation.
type TaskRetriever interface {
	FindSimilarTasks(ctx context.Context, task *types.Task, limit int) ([]SimilarTask, error)
}

// ErrAgentNotFound is returned for lookups of unregistered agents.
var ErrAgentNotFound = types.NewError(types.ErrNoAgentAvailable, "agent not registered in trust ledger")

const neutralPrior = 0.5

// entry pairs an agent's record with the lock serializing its updates.
type entry struct {
	mu    sync.Mutex
	trust AgentTrust
}

// Ledger holds the trust records of all registered agents. It is injected
// into the orchestrator, never a process-wide singleton.
type Ledger struct {
	mu        sync.RWMutex
	agents    map[string]*entry
	cfg       Config
	retriever TaskRetriever
	logger    *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetriever attaches the optional task-similarity collaborator.
func WithRetriever(r TaskRetriever) Option {
	return func(l *Ledger) { l.retriever = r }
}

// NewLedger creates a trust ledger.
func NewLedger(cfg Config, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		agents: make(map[string]*entry),
		cfg:    cfg.normalized(),
		logger: logger.With(zap.String("component", "trust_ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register inserts a neutral record for the agent if absent. Re-registering
// never resets an already-adjusted score.
func (l *Ledger) Register(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.agents[agentID]; ok {
		return
	}
	l.agents[agentID] = &entry{trust: AgentTrust{
		AgentID:     agentID,
		TrustScore:  neutralPrior,
		SkillLevels: make(map[string]float64),
		History:     []HistoryEntry{},
	}}
	l.logger.Info("agent registered", zap.String("agent_id", agentID))
}

// Unregister removes the agent's record. Subsequent lookups return
// ErrAgentNotFound.
func (l *Ledger) Unregister(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.agents, agentID)
}

// Registered reports whether the agent has a record.
func (l *Ledger) Registered(agentID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.agents[agentID]
	return ok
}

func (l *Ledger) lookup(agentID string) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return e, nil
}

// Get returns a snapshot copy of the agent's trust record.
func (l *Ledger) Get(agentID string) (AgentTrust, error) {
	e, err := l.lookup(agentID)
	if err != nil {
		return AgentTrust{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(&e.trust), nil
}

func snapshot(t *AgentTrust) AgentTrust {
	out := *t
	out.SkillLevels = make(map[string]float64, len(t.SkillLevels))
	for k, v := range t.SkillLevels {
		out.SkillLevels[k] = v
	}
	out.History = append([]HistoryEntry(nil), t.History...)
	return out
}

// UpdateTrust applies one outcome to the agent's score:
//
//	score' = clamp01(score + lr*(target - score))
//
// where target is the performance score on success and the configured low
// failure target on failure, so a failure always pulls the score down.
// The outcome is appended to the agent's history. Must be called exactly
// once per completed handoff.
func (l *Ledger) UpdateTrust(agentID string, outcome Outcome) error {
	e, err := l.lookup(agentID)
	if err != nil {
		return err
	}

	perf := clamp01(outcome.PerformanceScore)
	target := l.cfg.FailureTarget
	if outcome.Success {
		target = perf
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.trust.TrustScore
	after := clamp01(before + l.cfg.LearningRate*(target-before))
	e.trust.TrustScore = after
	e.trust.TotalInteractions++
	if outcome.Success {
		e.trust.SuccessfulInteractions++
	}
	e.trust.History = append(e.trust.History, HistoryEntry{
		Outcome:    outcome,
		Delta:      after - before,
		ScoreAfter: after,
		Timestamp:  time.Now(),
	})

	l.logger.Debug("trust updated",
		zap.String("agent_id", agentID),
		zap.Bool("success", outcome.Success),
		zap.Float64("score", after),
	)
	return nil
}

// RegisterSkill records a skill level for the agent. Levels are monotonically
// non-decreasing: a lower re-registration is a no-op.
func (l *Ledger) RegisterSkill(agentID, skill string, level float64) error {
	e, err := l.lookup(agentID)
	if err != nil {
		return err
	}
	level = clamp01(level)

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.trust.SkillLevels[skill]; !ok || level > existing {
		e.trust.SkillLevels[skill] = level
	}
	return nil
}

// TrustTrend classifies the agent's recent score movement from the sign of
// its last few update deltas.
func (l *Ledger) TrustTrend(agentID string) (Trend, error) {
	e, err := l.lookup(agentID)
	if err != nil {
		return TrendNeutral, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.trust.History
	if len(history) == 0 {
		return TrendNeutral, nil
	}
	n := 3
	if len(history) < n {
		n = len(history)
	}
	var sum float64
	for _, h := range history[len(history)-n:] {
		sum += h.Delta
	}
	const eps = 1e-3
	switch {
	case sum > eps:
		return TrendRising, nil
	case sum < -eps:
		return TrendFalling, nil
	default:
		return TrendStable, nil
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ---- evaluation ----

// EvaluateTrust blends capability match, the current score with its recent
// trend, and (when a retriever is attached) the success rate on similar past
// tasks. Confidence reflects the agreement of the factors.
func (l *Ledger) EvaluateTrust(ctx context.Context, agent *types.Agent, task *types.Task) (*Evaluation, error) {
	e, err := l.lookup(agent.ID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	record := snapshot(&e.trust)
	e.mu.Unlock()

	factors := []Factor{
		{Name: "capability_match", Score: capabilityFit(agent, task, record.SkillLevels), Weight: 0.3},
		{Name: "historical_success", Score: trendedScore(&record), Weight: 0.5},
	}

	if l.retriever != nil {
		if score, ok := l.similarityScore(ctx, task); ok {
			factors = append(factors, Factor{Name: "task_similarity", Score: score, Weight: 0.2})
		}
	}

	blended := weightedMean(factors)
	confidence := factorConfidence(factors)
	if len(factors) < 3 {
		// no similarity signal: less agreement to measure, lower confidence
		confidence *= 0.75
	}

	rec := RecommendCautious
	switch {
	case blended >= l.cfg.TrustThreshold:
		rec = RecommendTrust
	case blended < l.cfg.DistrustThreshold:
		rec = RecommendDistrust
	}

	return &Evaluation{
		AgentID:        agent.ID,
		TrustScore:     blended,
		Confidence:     confidence,
		Recommendation: rec,
		Factors:        factors,
	}, nil
}

// similarityScore asks the retrieval collaborator for tasks resembling task
// and computes a similarity-weighted success rate. Retrieval failure degrades
// to "no signal", never a hard failure.
func (l *Ledger) similarityScore(ctx context.Context, task *types.Task) (float64, bool) {
	similar, err := l.retriever.FindSimilarTasks(ctx, task, l.cfg.SimilarLimit)
	if err != nil {
		l.logger.Debug("similarity retrieval failed", zap.Error(err))
		return 0, false
	}
	if len(similar) == 0 {
		return 0, false
	}
	var weighted, total float64
	for _, s := range similar {
		w := clamp01(s.Similarity)
		total += w
		if s.Success {
			weighted += w
		}
	}
	if total == 0 {
		return 0, false
	}
	return weighted / total, true
}

// capabilityFit scores how well an agent's declared capabilities and skill
// levels match a task's requirements. With nothing required, the fit is
// neutral.
func capabilityFit(agent *types.Agent, task *types.Task, skills map[string]float64) float64 {
	required := task.RequiredCapabilities()
	if len(required) == 0 {
		return neutralPrior
	}
	var sum float64
	for _, name := range required {
		if !agent.HasCapability(name) {
			continue
		}
		if level, ok := skills[name]; ok {
			sum += 0.5 + 0.5*level
		} else {
			sum += 0.5
		}
	}
	return clamp01(sum / float64(len(required)))
}

// trendedScore blends the current trust score with the recent success rate so
// a streak shows up before the EWMA fully converges.
func trendedScore(record *AgentTrust) float64 {
	score := record.TrustScore
	history := record.History
	if len(history) == 0 {
		return score
	}
	n := 5
	if len(history) < n {
		n = len(history)
	}
	var successes float64
	for _, h := range history[len(history)-n:] {
		if h.Outcome.Success {
			successes++
		}
	}
	recent := successes / float64(n)
	return clamp01(0.8*score + 0.2*recent)
}

func weightedMean(factors []Factor) float64 {
	var sum, weights float64
	for _, f := range factors {
		sum += f.Score * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return 0
	}
	return clamp01(sum / weights)
}

// factorConfidence derives confidence from factor dispersion: the less the
// factors agree, the lower the confidence.
func factorConfidence(factors []Factor) float64 {
	if len(factors) < 2 {
		return 0.5
	}
	var mean float64
	for _, f := range factors {
		mean += f.Score
	}
	mean /= float64(len(factors))

	var variance float64
	for _, f := range factors {
		d := f.Score - mean
		variance += d * d
	}
	variance /= float64(len(factors))
	return clamp01(1 - 2*math.Sqrt(variance))
}

// ---- ranking ----

// RankedAgent pairs a candidate with its combined routing score.
type RankedAgent struct {
	Agent      *types.Agent
	Evaluation *Evaluation
	Combined   float64
}

// RankAgentsByTrust evaluates every registered candidate, combines the
// evaluation with a capability-fit score, and returns the candidates sorted
// descending by combined score; ties break toward lower current workload.
// Unregistered candidates are skipped.
func (l *Ledger) RankAgentsByTrust(ctx context.Context, agents []*types.Agent, task *types.Task) ([]RankedAgent, error) {
	ranked := make([]RankedAgent, len(agents))
	g, ctx := errgroup.WithContext(ctx)

	for i, agent := range agents {
		if !l.Registered(agent.ID) {
			continue
		}
		i, agent := i, agent
		g.Go(func() error {
			eval, err := l.EvaluateTrust(ctx, agent, task)
			if err != nil {
				return err
			}
			record, err := l.Get(agent.ID)
			if err != nil {
				return err
			}
			fit := capabilityFit(agent, task, record.SkillLevels)
			ranked[i] = RankedAgent{
				Agent:      agent,
				Evaluation: eval,
				Combined:   l.cfg.TrustWeight*eval.TrustScore + l.cfg.CapabilityWeight*fit,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := ranked[:0]
	for _, r := range ranked {
		if r.Agent != nil {
			out = append(out, r)
		}
	}

	const eps = 1e-9
	sort.SliceStable(out, func(i, j int) bool {
		if math.Abs(out[i].Combined-out[j].Combined) > eps {
			return out[i].Combined > out[j].Combined
		}
		return out[i].Agent.Workload < out[j].Agent.Workload
	})
	return out, nil
}
