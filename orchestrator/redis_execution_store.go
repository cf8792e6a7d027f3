package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	executionStoreKeyPrefix  = "agentgate:orchestrator:execution:"
	defaultExecutionStoreDB  = 3
	defaultExecutionStoreTTL = 24 * time.Hour
)

// RedisExecutionStore persists ExecutionResult snapshots for debugging
// and replay, the way the teacher's execution debug store persists
// workflow runs: one JSON blob per run ID, with a TTL so the keyspace
// doesn't grow without bound.
type RedisExecutionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisExecutionStoreOption configures a RedisExecutionStore.
type RedisExecutionStoreOption func(*RedisExecutionStore)

func WithExecutionStoreKeyPrefix(prefix string) RedisExecutionStoreOption {
	return func(s *RedisExecutionStore) { s.prefix = prefix }
}

func WithExecutionStoreTTL(ttl time.Duration) RedisExecutionStoreOption {
	return func(s *RedisExecutionStore) { s.ttl = ttl }
}

// NewRedisExecutionStore dials Redis and verifies connectivity with a
// short-lived ping, matching the fail-fast convention the rest of the
// gateway's Redis-backed constructors use.
func NewRedisExecutionStore(redisURL string, opts ...RedisExecutionStoreOption) (*RedisExecutionStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse redis url: %w", err)
	}
	if parsed.DB == 0 {
		parsed.DB = defaultExecutionStoreDB
	}
	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("orchestrator: redis ping: %w", err)
	}

	s := &RedisExecutionStore{client: client, prefix: executionStoreKeyPrefix, ttl: defaultExecutionStoreTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// newRedisExecutionStoreWithClient builds a store around an existing
// client, bypassing URL parsing and the connectivity ping. Used by
// tests against a miniredis instance.
func newRedisExecutionStoreWithClient(client *redis.Client) *RedisExecutionStore {
	return &RedisExecutionStore{client: client, prefix: executionStoreKeyPrefix, ttl: defaultExecutionStoreTTL}
}

func (s *RedisExecutionStore) key(planID string) string {
	return s.prefix + planID
}

// SaveResult implements ExecutionStore.
func (s *RedisExecutionStore) SaveResult(ctx context.Context, planID string, result ExecutionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal execution result: %w", err)
	}
	return s.client.Set(ctx, s.key(planID), data, s.ttl).Err()
}

// LoadResult fetches a previously saved run, mainly for operator
// debugging and replay tooling.
func (s *RedisExecutionStore) LoadResult(ctx context.Context, planID string) (ExecutionResult, error) {
	data, err := s.client.Get(ctx, s.key(planID)).Bytes()
	if err == redis.Nil {
		return ExecutionResult{}, nil
	}
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("orchestrator: get execution result: %w", err)
	}
	var result ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ExecutionResult{}, fmt.Errorf("orchestrator: unmarshal execution result: %w", err)
	}
	return result, nil
}

func (s *RedisExecutionStore) Close() error {
	return s.client.Close()
}
