package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(time.Hour, time.Minute, 24*time.Hour)
}

// TestConcurrentCheckAndSetExactlyOneIsNew exercises spec property 4 /
// scenario S3: N concurrent callers with the same key must yield exactly
// one isNew=true.
func TestConcurrentCheckAndSetExactlyOneIsNew(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, _, err := s.CheckAndSet(ctx, "dedupe-key", "tenant-1", time.Hour, "payload-hash-1")
			if !assert.NoError(t, err) {
				return
			}
			if isNew {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount, "expected exactly 1 isNew=true")
}

func TestCheckAndSetCollisionOnDifferingPayloadHash(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	isNew, _, err := s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-a")
	require.NoError(t, err)
	require.True(t, isNew)

	_, _, err = s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-b")
	assert.ErrorIs(t, err, ErrCollision)
}

func TestCheckAndSetSamePayloadHashReturnsExistingRecord(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	_, first, _ := s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-a")
	isNew, second, err := s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-a")
	require.NoError(t, err)
	assert.False(t, isNew, "expected isNew=false on repeat with same payload hash")
	assert.Equal(t, first.KeyHash, second.KeyHash)
}

func TestCompleteAndGetReflectStatus(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	_, rec, _ := s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-a")
	require.NoError(t, s.Complete(ctx, rec.KeyHash, "run-123", map[string]any{"ok": true}))

	got, ok, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "run-123", got.RunID)
}

func TestNormalizeTTLClampsToBounds(t *testing.T) {
	cases := []struct {
		ttl, def, min, max, want time.Duration
	}{
		{0, time.Hour, time.Minute, 24 * time.Hour, time.Hour},
		{time.Second, time.Hour, time.Minute, 24 * time.Hour, time.Minute},
		{48 * time.Hour, time.Hour, time.Minute, 24 * time.Hour, 24 * time.Hour},
		{2 * time.Hour, time.Hour, time.Minute, 24 * time.Hour, 2 * time.Hour},
	}
	for _, tc := range cases {
		got := NormalizeTTL(tc.ttl, tc.def, tc.min, tc.max)
		assert.Equal(t, tc.want, got, "NormalizeTTL(%v,%v,%v,%v)", tc.ttl, tc.def, tc.min, tc.max)
	}
}

func TestExpiredRecordIsReclaimable(t *testing.T) {
	s := newTestStore()
	defer s.Close()
	ctx := context.Background()

	isNew, _, err := s.CheckAndSet(ctx, "key-1", "tenant-1", time.Millisecond, "hash-a")
	require.NoError(t, err)
	require.True(t, isNew)
	time.Sleep(5 * time.Millisecond)

	isNew, _, err = s.CheckAndSet(ctx, "key-1", "tenant-1", time.Hour, "hash-b")
	require.NoError(t, err)
	assert.True(t, isNew, "expected expired record to be reclaimable as new")
}
