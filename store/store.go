// Package store persists finalized handoff records so outcomes survive a
// restart and can be inspected per agent. Two implementations: an in-memory
// store for tests and single-process runs, and a Redis store for distributed
// deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/localswarm/localswarm/orchestrator"
)

// ErrRecordNotFound is returned when a handoff record does not exist.
var ErrRecordNotFound = errors.New("handoff record not found")

// RecordStore persists and queries handoff records.
type RecordStore interface {
	// SaveRecord persists a finalized record.
	SaveRecord(ctx context.Context, record *orchestrator.HandoffRecord) error

	// GetRecord retrieves a record by handoff ID.
	GetRecord(ctx context.Context, handoffID string) (*orchestrator.HandoffRecord, error)

	// ListByAgent returns records where the agent was the target, newest
	// first, up to limit.
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*orchestrator.HandoffRecord, error)

	// Cleanup removes records older than the given age and returns how many
	// were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the store's resources.
	Close() error
}
