package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/runforge/corectl/pkg/corerr"
)

// MemoryStore is a mutex-guarded, TTL-sweeping Store, linearizable per key
// because CheckAndSet holds the single mutex for its entire read-then-write.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string]Record
	defaultTTL  time.Duration
	minTTL      time.Duration
	maxTTL      time.Duration
	stopCleanup chan struct{}
}

// NewMemoryStore constructs a MemoryStore and starts a background sweep
// goroutine, matching this codebase's TTL-cache convention (pkg/api's
// MemoryIdempotencyStore.cleanup).
func NewMemoryStore(defaultTTL, minTTL, maxTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		records:     make(map[string]Record),
		defaultTTL:  defaultTTL,
		minTTL:      minTTL,
		maxTTL:      maxTTL,
		stopCleanup: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), 0)
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() { close(s.stopCleanup) }

func (s *MemoryStore) CheckAndSet(_ context.Context, key, tenantID string, ttl time.Duration, payloadHash string) (bool, Record, error) {
	keyHash := HashKey(key)
	ttl = NormalizeTTL(ttl, s.defaultTTL, s.minTTL, s.maxTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.records[keyHash]; ok && now.Before(existing.ExpiresAt) {
		if payloadHash != "" && existing.PayloadHash != "" && existing.PayloadHash != payloadHash {
			return false, Record{}, ErrCollision
		}
		return false, existing, nil
	}

	record := Record{
		KeyHash:     keyHash,
		Key:         key,
		TenantID:    tenantID,
		Status:      StatusPending,
		PayloadHash: payloadHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	s.records[keyHash] = record
	return true, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, keyHash, runID string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[keyHash]
	if !ok {
		return corerr.New(corerr.KindNotFound, "idempotency.not_found", "no record for key hash")
	}
	r.Status = StatusCompleted
	r.RunID = runID
	r.Result = result
	s.records[keyHash] = r
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, keyHash, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[keyHash]
	if !ok {
		return corerr.New(corerr.KindNotFound, "idempotency.not_found", "no record for key hash")
	}
	r.Status = StatusFailed
	r.Error = errMsg
	s.records[keyHash] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[HashKey(key)]
	if !ok || time.Now().UTC().After(r.ExpiresAt) {
		return Record{}, false, nil
	}
	return r, true, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *MemoryStore) Cleanup(_ context.Context, batch int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	removed := 0
	for k, r := range s.records {
		if now.After(r.ExpiresAt) {
			delete(s.records, k)
			removed++
			if batch > 0 && removed >= batch {
				break
			}
		}
	}
	return removed, nil
}
