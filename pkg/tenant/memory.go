package tenant

import (
	"context"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// MemoryStore is an in-process Store keyed by tenant ID.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]Tenant
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]Tenant)}
}

func (s *MemoryStore) Put(_ context.Context, t Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID string) (Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	return t, ok, nil
}

// StaticCatalog is a fixed, in-memory TierCatalog.
type StaticCatalog struct {
	tiers map[string]Tier
}

// NewStaticCatalog builds a catalog from the given tiers, keyed by
// Tier.Plan.
func NewStaticCatalog(tiers ...Tier) *StaticCatalog {
	c := &StaticCatalog{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		c.tiers[t.Plan] = t
	}
	return c
}

func (c *StaticCatalog) Tier(plan string) (Tier, bool) {
	t, ok := c.tiers[plan]
	return t, ok
}

// MustVersion parses a semver string, panicking on malformed input; meant
// for package-level tier table construction, not request-path use.
func MustVersion(v string) *semver.Version {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		panic("tenant: invalid tier schema version " + v + ": " + err.Error())
	}
	return parsed
}
