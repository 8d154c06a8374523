package orchestrator

import (
	"fmt"

	"github.com/localswarm/localswarm/types"
)

// ErrNoAgentAvailable is returned when a handoff has no registered candidate
// to route to. It is fatal; no retries are attempted.
var ErrNoAgentAvailable = types.NewError(types.ErrNoAgentAvailable, "no agent available for handoff")

// PermanentFailureError is the single terminal error surfaced when the
// primary provider is exhausted and the fallback (if any) also failed. Both
// causes are preserved so failures stay diagnosable.
type PermanentFailureError struct {
	TaskID           string
	PrimaryProvider  string
	FallbackProvider string
	PrimaryErr       error
	FallbackErr      error
}

func (e *PermanentFailureError) Error() string {
	if e.FallbackErr == nil {
		return fmt.Sprintf("Failed to handoff to local agent for task %s: %s: %v (no fallback provider)",
			e.TaskID, e.PrimaryProvider, e.PrimaryErr)
	}
	return fmt.Sprintf("Failed to handoff to local agent for task %s: %s: %v; %s: %v",
		e.TaskID, e.PrimaryProvider, e.PrimaryErr, e.FallbackProvider, e.FallbackErr)
}

// Unwrap exposes both causes to errors.Is/errors.As.
func (e *PermanentFailureError) Unwrap() []error {
	if e.FallbackErr == nil {
		return []error{e.PrimaryErr}
	}
	return []error{e.PrimaryErr, e.FallbackErr}
}
