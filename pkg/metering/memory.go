package metering

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store, grounded on pkg/budget.memory_store's
// mutex-guarded map convention.
type MemoryStore struct {
	mu         sync.Mutex
	events     []Event
	aggregates map[string]map[string]int64 // key(tenantID,bucket) -> eventType -> count
}

// NewMemoryStore constructs an empty metering store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{aggregates: make(map[string]map[string]int64)}
}

func aggKey(tenantID string, bucket Bucket) string {
	return tenantID + "\x00" + string(bucket)
}

func (s *MemoryStore) AppendEvent(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) IncrementAggregate(_ context.Context, tenantID string, bucket Bucket, eventType string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aggKey(tenantID, bucket)
	if s.aggregates[key] == nil {
		s.aggregates[key] = make(map[string]int64)
	}
	s.aggregates[key][eventType] += amount
	return nil
}

func (s *MemoryStore) GetAggregate(_ context.Context, tenantID string, bucket Bucket) (Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := s.aggregates[aggKey(tenantID, bucket)]
	copied := make(map[string]int64, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	return Aggregate{TenantID: tenantID, Bucket: bucket, Counts: copied}, nil
}

func (s *MemoryStore) EventsInBucket(_ context.Context, tenantID string, bucket Bucket) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Event
	for _, e := range s.events {
		if e.TenantID != tenantID {
			continue
		}
		if DailyBucket(e.OccurredAt) == bucket || MonthlyBucket(e.OccurredAt) == bucket {
			matched = append(matched, e)
		}
	}
	return matched, nil
}
