package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/runforge/corectl/pkg/corerr"
)

var errNotFound = corerr.New(corerr.KindNotFound, "idempotency.not_found", "no record for key hash")

// redisCheckAndSetScript performs the read-compare-write atomically so two
// concurrent callers with the same key can never both observe isNew=1.
// KEYS[1] = record key
// ARGV[1] = payloadHash
// ARGV[2] = ttlSeconds
// ARGV[3] = nowUnix
// ARGV[4] = new record JSON (used only when the key is absent or expired)
//
// Grounded on this codebase's pkg/kernel RedisLimiterStore's atomic
// read-modify-write Lua script, adapted from token-bucket math to a
// presence/collision check.
var redisCheckAndSetScript = redis.NewScript(`
local key = KEYS[1]
local payloadHash = ARGV[1]
local ttl = tonumber(ARGV[2])
local newRecord = ARGV[4]

local existing = redis.call("GET", key)
if not existing then
	redis.call("SET", key, newRecord, "EX", ttl)
	return {1, newRecord}
end

local existingHash = cjson.decode(existing)["PayloadHash"]
if payloadHash ~= "" and existingHash ~= "" and existingHash ~= payloadHash then
	return {-1, existing}
end

return {0, existing}
`)

// RedisStore implements Store over Redis using a Lua-scripted atomic
// check-and-set, suited for multi-process deployments where MemoryStore's
// in-process mutex cannot serialize callers.
type RedisStore struct {
	client                     *redis.Client
	defaultTTL, minTTL, maxTTL time.Duration
	prefix                     string
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, defaultTTL, minTTL, maxTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, defaultTTL: defaultTTL, minTTL: minTTL, maxTTL: maxTTL, prefix: "idempotency:"}
}

func (s *RedisStore) key(keyHash string) string { return s.prefix + keyHash }

func (s *RedisStore) CheckAndSet(ctx context.Context, key, tenantID string, ttl time.Duration, payloadHash string) (bool, Record, error) {
	keyHash := HashKey(key)
	ttl = NormalizeTTL(ttl, s.defaultTTL, s.minTTL, s.maxTTL)
	now := time.Now().UTC()

	record := Record{
		KeyHash: keyHash, Key: key, TenantID: tenantID, Status: StatusPending,
		PayloadHash: payloadHash, CreatedAt: now, ExpiresAt: now.Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return false, Record{}, fmt.Errorf("idempotency: marshal record: %w", err)
	}

	res, err := redisCheckAndSetScript.Run(ctx, s.client, []string{s.key(keyHash)},
		payloadHash, int(ttl.Seconds()), now.Unix(), string(payload)).Result()
	if err != nil {
		return false, Record{}, fmt.Errorf("idempotency: redis script: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, Record{}, fmt.Errorf("idempotency: unexpected script response")
	}
	outcome, _ := results[0].(int64)
	raw, _ := results[1].(string)

	var stored Record
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}

	switch outcome {
	case 1:
		return true, stored, nil
	case -1:
		return false, Record{}, ErrCollision
	default:
		return false, stored, nil
	}
}

func (s *RedisStore) update(ctx context.Context, keyHash string, mutate func(*Record)) error {
	raw, err := s.client.Get(ctx, s.key(keyHash)).Result()
	if err == redis.Nil {
		return errNotFound
	}
	if err != nil {
		return fmt.Errorf("idempotency: redis get: %w", err)
	}
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return fmt.Errorf("idempotency: decode record: %w", err)
	}
	mutate(&r)
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("idempotency: marshal record: %w", err)
	}
	ttl := time.Until(r.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, s.key(keyHash), payload, ttl).Err()
}

func (s *RedisStore) Complete(ctx context.Context, keyHash, runID string, result map[string]any) error {
	return s.update(ctx, keyHash, func(r *Record) {
		r.Status = StatusCompleted
		r.RunID = runID
		r.Result = result
	})
}

func (s *RedisStore) Fail(ctx context.Context, keyHash, errMsg string) error {
	return s.update(ctx, keyHash, func(r *Record) {
		r.Status = StatusFailed
		r.Error = errMsg
	})
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key(HashKey(key))).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return r, true, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Cleanup is a no-op: Redis TTLs expire keys natively.
func (s *RedisStore) Cleanup(ctx context.Context, batch int) (int, error) {
	return 0, nil
}
