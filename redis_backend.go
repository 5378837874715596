package resilock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua scripts implementing the atomic acquire/release/owned primitives.
// EVAL is used throughout rather than a sequence of separate commands so
// that the check-then-act step can never be split by another client's
// operation landing in between (TOCTOU).
const (
	redisAcquireScript = `
local existing = redis.call("GET", KEYS[1])
if existing == false or existing == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`

	redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

	redisOwnedScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return 1
end
return 0
`
)

// RedisBackend is a SyncBackend storing lock records as Redis keys whose
// value is the fencing token and whose TTL is the lock duration, so expiry
// is enforced by Redis itself rather than by client-side bookkeeping.
type RedisBackend struct {
	client     *redis.Client
	keyPrefix  string
	logger     Logger
	metrics    Metrics
	autoReg    bool
}

// RedisBackendOption configures a RedisBackend.
type RedisBackendOption func(*RedisBackend)

// WithRedisKeyPrefix sets an optional prefix prepended to every lock name
// when forming the underlying Redis key. Empty (the default) means one key
// per lock name with no prefix, matching the documented key model.
func WithRedisKeyPrefix(prefix string) RedisBackendOption {
	return func(b *RedisBackend) { b.keyPrefix = prefix }
}

// WithRedisLogger attaches a Logger to a RedisBackend.
func WithRedisLogger(l Logger) RedisBackendOption {
	return func(b *RedisBackend) { b.logger = l }
}

// WithRedisMetrics attaches a Metrics sink to a RedisBackend.
func WithRedisMetrics(m Metrics) RedisBackendOption {
	return func(b *RedisBackend) { b.metrics = m }
}

// WithAutoRegister registers the constructed backend under category "lock"
// in the default BackendRegistry as part of construction.
func WithAutoRegister(enabled bool) RedisBackendOption {
	return func(b *RedisBackend) { b.autoReg = enabled }
}

// NewRedisBackend wraps an existing go-redis client. The client's lifecycle
// (including Close) remains the caller's responsibility.
func NewRedisBackend(client *redis.Client, opts ...RedisBackendOption) *RedisBackend {
	b := &RedisBackend{
		client:  client,
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = orNoOpLogger(b.logger)
	b.metrics = orNoOpMetrics(b.metrics)
	if b.autoReg {
		DefaultBackendRegistry().Register("lock", b)
	}
	return b
}

var _ SyncBackend = (*RedisBackend)(nil)

// key forms the Redis key for name. No prefix is applied by default — one
// key per lock name, matching the key model exactly.
func (b *RedisBackend) key(name string) string {
	if b.keyPrefix == "" {
		return name
	}
	return fmt.Sprintf("%s:%s", b.keyPrefix, name)
}

func (b *RedisBackend) Acquire(ctx context.Context, name, token string, duration time.Duration) (bool, error) {
	res, err := b.client.Eval(ctx, redisAcquireScript, []string{b.key(name)}, token, duration.Milliseconds()).Result()
	if err != nil {
		b.logger.Error("redis lock acquire failed", "name", name, "error", err)
		return false, LockAcquireError(name, token, err)
	}
	ok := toInt64(res) == 1
	if ok {
		b.metrics.Increment(MetricLockAcquired, "name", name)
	} else {
		b.metrics.Increment(MetricLockFailed, "name", name)
	}
	return ok, nil
}

func (b *RedisBackend) Release(ctx context.Context, name, token string) (bool, error) {
	res, err := b.client.Eval(ctx, redisReleaseScript, []string{b.key(name)}, token).Result()
	if err != nil {
		b.logger.Error("redis lock release failed", "name", name, "error", err)
		return false, LockReleaseError(name, token, err)
	}
	return toInt64(res) == 1, nil
}

func (b *RedisBackend) Locked(ctx context.Context, name string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(name)).Result()
	if err != nil {
		return false, LockAcquireError(name, "", err)
	}
	return n == 1, nil
}

func (b *RedisBackend) Owned(ctx context.Context, name, token string) (bool, error) {
	res, err := b.client.Eval(ctx, redisOwnedScript, []string{b.key(name)}, token).Result()
	if err != nil {
		return false, LockAcquireError(name, token, err)
	}
	return toInt64(res) == 1, nil
}

// ListLocks scans for every key under the backend's prefix. Intended for
// administrative use (LockManager) rather than the hot path: SCAN is used
// instead of KEYS to avoid blocking the Redis server on large keyspaces.
func (b *RedisBackend) ListLocks(ctx context.Context) ([]LockRecord, error) {
	pattern := b.key("*")
	var records []LockRecord
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		pipe := b.client.Pipeline()
		getCmd := pipe.Get(ctx, redisKey)
		ttlCmd := pipe.PTTL(ctx, redisKey)
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			continue
		}
		token, gerr := getCmd.Result()
		if gerr != nil {
			continue
		}
		ttl, terr := ttlCmd.Result()
		if terr != nil {
			continue
		}
		name := redisKey[len(b.key("")):]
		records = append(records, LockRecord{
			Name:     name,
			Token:    token,
			ExpireAt: time.Now().Add(ttl),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning redis keyspace: %w", err)
	}
	return records, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
