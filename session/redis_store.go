package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Miles0sage/agentgate/core"
)

// RedisStore is the distributed-deployment counterpart to Store: it keeps
// one JSON value per session key in Redis instead of one file per key, so
// multiple gateway replicas share session state (spec.md §3 Session,
// "multiple gateway instances must observe the same session" note).
// Grounded on the teacher's ui/session_redis.go (Redis-backed session
// manager) and core/redis_client.go's DB-isolation/namespacing
// convention — this store claims DB 2 ("session management") and
// prefixes every key with "agentgate:sessions:".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

const sessionKeyPrefix = "agentgate:sessions:"
const sessionRedisDB = 2

// NewRedisStore connects to redisURL (a redis:// URL) and verifies the
// connection with a Ping before returning.
func NewRedisStore(redisURL string, ttl time.Duration, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid redis url: %w", err)
	}
	opt.DB = sessionRedisDB
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, logger: logger}, nil
}

// newRedisStoreWithClient builds a RedisStore around an already-constructed
// client, letting tests point it at a miniredis instance without going
// through NewRedisStore's URL parsing and Ping.
func newRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: core.NoOpLogger{}}
}

func (r *RedisStore) key(sessionKey string) string {
	return sessionKeyPrefix + sessionKey
}

// Load reads a session's snapshot, returning an empty snapshot if the key
// has expired or never existed.
func (r *RedisStore) Load(ctx context.Context, sessionKey string) (Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(sessionKey)).Bytes()
	if err == redis.Nil {
		return Snapshot{SessionKey: sessionKey}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("session: redis get %s: %w", sessionKey, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("session: parse %s: %w", sessionKey, err)
	}
	return snap, nil
}

// Append loads the session, appends a message, and writes it back with a
// refreshed TTL. Redis's per-key single-threaded command processing gives
// the same last-writer-wins semantics as Store's atomic rename, without
// needing a client-side lock.
func (r *RedisStore) Append(ctx context.Context, sessionKey string, message core.Message) (Snapshot, error) {
	snap, err := r.Load(ctx, sessionKey)
	if err != nil {
		return Snapshot{}, err
	}
	snap.SessionKey = sessionKey
	snap.Messages = append(snap.Messages, message)

	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session: marshal %s: %w", sessionKey, err)
	}
	if err := r.client.Set(ctx, r.key(sessionKey), data, r.ttl).Err(); err != nil {
		return Snapshot{}, fmt.Errorf("session: redis set %s: %w", sessionKey, err)
	}
	return snap, nil
}

// ContextWindow returns the last 10 messages attached as context when
// calling an agent (spec.md §3 Session).
func (r *RedisStore) ContextWindow(ctx context.Context, sessionKey string) ([]core.Message, error) {
	snap, err := r.Load(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(snap.Messages) <= contextWindowSize {
		return snap.Messages, nil
	}
	return snap.Messages[len(snap.Messages)-contextWindowSize:], nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
