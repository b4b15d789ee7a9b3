// Package idempotency is the Idempotency Store (F): atomic check-and-set
// keyed by a hashed request key, with TTL bounds, a pending/completed/
// failed status lifecycle, and payload-hash collision detection. Grounded
// on this codebase's pkg/api in-memory/Postgres idempotency stores (TTL-
// bounded entries, interface-based storer abstraction), substantially
// extended from a plain cache-a-response pattern to the spec's atomic
// linearizable check-and-set with collision detection.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/runforge/corectl/pkg/corerr"
)

// Status is the record's lifecycle stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the §3.5 data model.
type Record struct {
	KeyHash     string
	Key         string
	TenantID    string
	Status      Status
	RunID       string
	Result      map[string]any
	PayloadHash string
	Error       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store is the idempotency contract (§4.5).
type Store interface {
	// CheckAndSet atomically returns the existing record or creates a new
	// pending one. isNew is true only for the caller that created it.
	CheckAndSet(ctx context.Context, key, tenantID string, ttl time.Duration, payloadHash string) (isNew bool, record Record, err error)
	Complete(ctx context.Context, keyHash, runID string, result map[string]any) error
	Fail(ctx context.Context, keyHash, errMsg string) error
	Get(ctx context.Context, key string) (Record, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Cleanup(ctx context.Context, batch int) (int, error)
}

// HashKey computes the keyHash identifier (§3.5: keyHash = SHA256(key)).
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeTTL clamps a caller-supplied TTL into [min, max], defaulting to
// def when ttl is zero.
func NormalizeTTL(ttl, def, min, max time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = def
	}
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}

// ErrCollision is returned when a non-expired record exists with a
// different payloadHash than the one supplied.
var ErrCollision = corerr.New(corerr.KindConflict, "idempotency.collision", "payload hash differs from stored record")
