package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localswarm/localswarm/orchestrator"
)

// RedisConfig configures the Redis record store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisRecordStore is a Redis-backed RecordStore suitable for distributed
// deployments. Records are stored as JSON values; a per-agent sorted set
// keyed by completion time supports newest-first listing and age cleanup.
type RedisRecordStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRecordStore connects to Redis and verifies the connection.
func NewRedisRecordStore(cfg RedisConfig) (*RedisRecordStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "localswarm:"
	}
	return &RedisRecordStore{
		client:    client,
		keyPrefix: keyPrefix + "handoff:",
	}, nil
}

// NewRedisRecordStoreWithClient wraps an existing client (used in tests).
func NewRedisRecordStoreWithClient(client *redis.Client, keyPrefix string) *RedisRecordStore {
	if keyPrefix == "" {
		keyPrefix = "localswarm:"
	}
	return &RedisRecordStore{client: client, keyPrefix: keyPrefix + "handoff:"}
}

func (s *RedisRecordStore) recordKey(handoffID string) string {
	return s.keyPrefix + "record:" + handoffID
}

func (s *RedisRecordStore) agentKey(agentID string) string {
	return s.keyPrefix + "agent:" + agentID
}

func (s *RedisRecordStore) indexKey() string {
	return s.keyPrefix + "by_time"
}

// SaveRecord persists a finalized record.
func (s *RedisRecordStore) SaveRecord(ctx context.Context, record *orchestrator.HandoffRecord) error {
	if record == nil || record.HandoffID == "" {
		return ErrRecordNotFound
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal handoff record: %w", err)
	}

	score := float64(record.CompletedAt.UnixMilli())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.HandoffID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: record.HandoffID})
	pipe.ZAdd(ctx, s.agentKey(record.TargetAgentID), redis.Z{Score: score, Member: record.HandoffID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save handoff record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by handoff ID.
func (s *RedisRecordStore) GetRecord(ctx context.Context, handoffID string) (*orchestrator.HandoffRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(handoffID)).Bytes()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff record: %w", err)
	}

	var record orchestrator.HandoffRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal handoff record: %w", err)
	}
	return &record, nil
}

// ListByAgent returns the agent's records, newest first.
func (s *RedisRecordStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*orchestrator.HandoffRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.agentKey(agentID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list agent handoffs: %w", err)
	}

	out := make([]*orchestrator.HandoffRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetRecord(ctx, id)
		if err == ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Cleanup removes records completed before the cutoff.
func (s *RedisRecordStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	maxScore := fmt.Sprintf("(%d", cutoff)

	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan old handoffs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, id := range ids {
		record, err := s.GetRecord(ctx, id)
		if err == ErrRecordNotFound {
			continue
		}
		if err != nil {
			return 0, err
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		pipe.ZRem(ctx, s.agentKey(record.TargetAgentID), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("delete handoff record %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// Close closes the underlying client.
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}

var _ RecordStore = (*RedisRecordStore)(nil)
