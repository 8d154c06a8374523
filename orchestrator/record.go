package orchestrator

import "time"

// HandoffRecord is the result of one orchestration attempt. It is created at
// handoff start, finalized exactly once, and never mutated afterwards.
type HandoffRecord struct {
	HandoffID           string    `json:"handoff_id"`
	SourceAgentID       string    `json:"source_agent_id,omitempty"`
	TargetAgentID       string    `json:"target_agent_id"`
	FallbackAgentID     string    `json:"fallback_agent_id,omitempty"`
	TaskID              string    `json:"task_id"`
	ProviderUsed        string    `json:"provider_used,omitempty"`
	AttemptsOnPrimary   int       `json:"attempts_on_primary"`
	AttemptsOnFallback  int       `json:"attempts_on_fallback"`
	DurationMs          int64     `json:"duration_ms"`
	LatencyWithinTarget bool      `json:"latency_within_target"`
	Output              string    `json:"output,omitempty"`
	Error               string    `json:"error,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Succeeded reports whether the handoff produced a result.
func (r *HandoffRecord) Succeeded() bool {
	return r.Error == ""
}
