package store

import (
	"context"
	"sync"
	"time"

	"github.com/localswarm/localswarm/orchestrator"
)

// MemoryRecordStore is an in-memory RecordStore.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*orchestrator.HandoffRecord
	order   []string // insertion order, oldest first
}

// NewMemoryRecordStore creates an empty in-memory store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]*orchestrator.HandoffRecord),
	}
}

// SaveRecord stores a copy of the record.
func (s *MemoryRecordStore) SaveRecord(_ context.Context, record *orchestrator.HandoffRecord) error {
	if record == nil || record.HandoffID == "" {
		return ErrRecordNotFound
	}
	cp := *record

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[cp.HandoffID]; !exists {
		s.order = append(s.order, cp.HandoffID)
	}
	s.records[cp.HandoffID] = &cp
	return nil
}

// GetRecord retrieves a record by handoff ID.
func (s *MemoryRecordStore) GetRecord(_ context.Context, handoffID string) (*orchestrator.HandoffRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[handoffID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *record
	return &cp, nil
}

// ListByAgent returns the agent's records, newest first.
func (s *MemoryRecordStore) ListByAgent(_ context.Context, agentID string, limit int) ([]*orchestrator.HandoffRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*orchestrator.HandoffRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		record := s.records[s.order[i]]
		if record.TargetAgentID != agentID {
			continue
		}
		cp := *record
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Cleanup removes records completed before the cutoff.
func (s *MemoryRecordStore) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		record := s.records[id]
		if record.CompletedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryRecordStore) Close() error { return nil }

var _ RecordStore = (*MemoryRecordStore)(nil)
