package trust

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/localswarm/localswarm/types"
)

func newTestLedger(opts ...Option) *Ledger {
	return NewLedger(DefaultConfig(), zap.NewNop(), opts...)
}

func TestRegisterStartsAtNeutralPrior(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	record, err := ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, record.TrustScore)
	assert.Equal(t, 0, record.TotalInteractions)
}

func TestRegisterIsIdempotent(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	require.NoError(t, ledger.UpdateTrust("agent-1", Outcome{Success: true, PerformanceScore: 1.0}))
	adjusted, err := ledger.Get("agent-1")
	require.NoError(t, err)
	require.NotEqual(t, 0.5, adjusted.TrustScore)

	ledger.Register("agent-1")
	after, err := ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, adjusted.TrustScore, after.TrustScore)
	assert.Equal(t, adjusted.TotalInteractions, after.TotalInteractions)
}

func TestUnregisteredAgentLookupsFail(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")
	ledger.Unregister("agent-1")

	_, err := ledger.Get("agent-1")
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.ErrorIs(t, ledger.UpdateTrust("agent-1", Outcome{Success: true}), ErrAgentNotFound)
	assert.ErrorIs(t, ledger.RegisterSkill("agent-1", "coding", 0.9), ErrAgentNotFound)
}

func TestSuccessStreakConvergesUpward(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	prev := 0.5
	for i := 0; i < 10; i++ {
		require.NoError(t, ledger.UpdateTrust("agent-1", Outcome{Success: true, PerformanceScore: 1.0}))
		record, err := ledger.Get("agent-1")
		require.NoError(t, err)
		assert.Greater(t, record.TrustScore, prev)
		prev = record.TrustScore
	}
	assert.Greater(t, prev, 0.8)

	trend, err := ledger.TrustTrend("agent-1")
	require.NoError(t, err)
	assert.Equal(t, TrendRising, trend)
}

func TestFailureStreakConvergesDownward(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	prev := 0.5
	for i := 0; i < 10; i++ {
		require.NoError(t, ledger.UpdateTrust("agent-1", Outcome{Success: false, PerformanceScore: 0.2}))
		record, err := ledger.Get("agent-1")
		require.NoError(t, err)
		assert.Less(t, record.TrustScore, prev)
		prev = record.TrustScore
	}
	assert.Less(t, prev, 0.2)

	trend, err := ledger.TrustTrend("agent-1")
	require.NoError(t, err)
	assert.Equal(t, TrendFalling, trend)
}

func TestTrustScoreStaysClamped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ledger := newTestLedger()
		ledger.Register("agent-1")

		n := rapid.IntRange(1, 50).Draw(t, "updates")
		for i := 0; i < n; i++ {
			outcome := Outcome{
				Success:          rapid.Bool().Draw(t, "success"),
				PerformanceScore: rapid.Float64Range(-1, 2).Draw(t, "perf"),
			}
			require.NoError(t, ledger.UpdateTrust("agent-1", outcome))

			record, err := ledger.Get("agent-1")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, record.TrustScore, 0.0)
			assert.LessOrEqual(t, record.TrustScore, 1.0)
		}
	})
}

func TestConcurrentUpdatesAreAllApplied(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	const updates = 100
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			_ = ledger.UpdateTrust("agent-1", Outcome{Success: success, PerformanceScore: 0.8})
		}(i%2 == 0)
	}
	wg.Wait()

	record, err := ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, updates, record.TotalInteractions)
	assert.Equal(t, updates/2, record.SuccessfulInteractions)
	assert.Len(t, record.History, updates)
}

func TestRegisterSkillIsMonotonic(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")

	require.NoError(t, ledger.RegisterSkill("agent-1", "coding", 0.8))
	require.NoError(t, ledger.RegisterSkill("agent-1", "coding", 0.3))

	record, err := ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, record.SkillLevels["coding"])

	require.NoError(t, ledger.RegisterSkill("agent-1", "coding", 0.95))
	record, err = ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0.95, record.SkillLevels["coding"])
}

func TestGetReturnsSnapshot(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("agent-1")
	require.NoError(t, ledger.RegisterSkill("agent-1", "coding", 0.7))

	record, err := ledger.Get("agent-1")
	require.NoError(t, err)
	record.SkillLevels["coding"] = 0.1

	fresh, err := ledger.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0.7, fresh.SkillLevels["coding"])
}

func codingAgent(id string, workload int) *types.Agent {
	return &types.Agent{
		ID:           id,
		ProviderType: types.ProviderOllama,
		Capabilities: []string{"coding"},
		Capacity:     10,
		Workload:     workload,
	}
}

func codingTask() *types.Task {
	return &types.Task{ID: "task-1", Type: "coding", Description: "write a parser"}
}

func TestEvaluateTrustRecommendations(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("trusted")
	ledger.Register("distrusted")
	ledger.Register("fresh")

	for i := 0; i < 30; i++ {
		require.NoError(t, ledger.UpdateTrust("trusted", Outcome{Success: true, PerformanceScore: 1.0}))
		require.NoError(t, ledger.UpdateTrust("distrusted", Outcome{Success: false, PerformanceScore: 0.1}))
	}
	require.NoError(t, ledger.RegisterSkill("trusted", "coding", 0.9))

	ctx := context.Background()
	task := codingTask()

	eval, err := ledger.EvaluateTrust(ctx, codingAgent("trusted", 0), task)
	require.NoError(t, err)
	assert.Equal(t, RecommendTrust, eval.Recommendation)
	assert.Len(t, eval.Factors, 2)

	eval, err = ledger.EvaluateTrust(ctx, codingAgent("distrusted", 0), task)
	require.NoError(t, err)
	assert.Equal(t, RecommendDistrust, eval.Recommendation)

	eval, err = ledger.EvaluateTrust(ctx, codingAgent("fresh", 0), task)
	require.NoError(t, err)
	assert.Equal(t, RecommendCautious, eval.Recommendation)
	assert.Greater(t, eval.Confidence, 0.0)
	assert.LessOrEqual(t, eval.Confidence, 1.0)
}

// stubRetriever returns canned similar tasks.
type stubRetriever struct {
	tasks []SimilarTask
	err   error
}

func (s *stubRetriever) FindSimilarTasks(context.Context, *types.Task, int) ([]SimilarTask, error) {
	return s.tasks, s.err
}

func TestEvaluateTrustWithSimilarityFactor(t *testing.T) {
	retriever := &stubRetriever{tasks: []SimilarTask{
		{TaskID: "a", Similarity: 0.9, Success: true},
		{TaskID: "b", Similarity: 0.8, Success: true},
	}}
	ledger := newTestLedger(WithRetriever(retriever))
	ledger.Register("agent-1")

	eval, err := ledger.EvaluateTrust(context.Background(), codingAgent("agent-1", 0), codingTask())
	require.NoError(t, err)
	require.Len(t, eval.Factors, 3)
	assert.Equal(t, "task_similarity", eval.Factors[2].Name)
	assert.Equal(t, 1.0, eval.Factors[2].Score)
}

func TestEvaluateTrustRetrieverFailureDegrades(t *testing.T) {
	ledger := newTestLedger(WithRetriever(&stubRetriever{err: errors.New("store offline")}))
	ledger.Register("agent-1")

	eval, err := ledger.EvaluateTrust(context.Background(), codingAgent("agent-1", 0), codingTask())
	require.NoError(t, err)
	assert.Len(t, eval.Factors, 2)
}

func TestRankAgentsByTrustOrdersByScore(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("strong")
	ledger.Register("weak")

	for i := 0; i < 20; i++ {
		require.NoError(t, ledger.UpdateTrust("strong", Outcome{Success: true, PerformanceScore: 1.0}))
		require.NoError(t, ledger.UpdateTrust("weak", Outcome{Success: false, PerformanceScore: 0.2}))
	}

	ranked, err := ledger.RankAgentsByTrust(context.Background(),
		[]*types.Agent{codingAgent("weak", 0), codingAgent("strong", 0)}, codingTask())
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "strong", ranked[0].Agent.ID)
	assert.Equal(t, "weak", ranked[1].Agent.ID)
	assert.Greater(t, ranked[0].Combined, ranked[1].Combined)
}

func TestRankAgentsByTrustTieBreaksOnWorkload(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("busy")
	ledger.Register("idle")

	ranked, err := ledger.RankAgentsByTrust(context.Background(),
		[]*types.Agent{codingAgent("busy", 8), codingAgent("idle", 1)}, codingTask())
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "idle", ranked[0].Agent.ID)
}

func TestRankAgentsByTrustSkipsUnregistered(t *testing.T) {
	ledger := newTestLedger()
	ledger.Register("known")

	ranked, err := ledger.RankAgentsByTrust(context.Background(),
		[]*types.Agent{codingAgent("known", 0), codingAgent("ghost", 0)}, codingTask())
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "known", ranked[0].Agent.ID)
}
