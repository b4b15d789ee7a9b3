package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *StaticCatalog {
	return NewStaticCatalog(
		Tier{Plan: "free", SchemaVersion: MustVersion("1.0.0"), Limits: Limits{RunsPerMonth: 100, Repos: 3, Members: 2}},
		Tier{Plan: "pro", SchemaVersion: MustVersion("1.0.0"), Limits: Limits{RunsPerMonth: 10000, Repos: 50, Members: 25}},
	)
}

type memorySink struct {
	events []string
}

func (s *memorySink) Record(_ context.Context, tenantID, event string, _ map[string]any) error {
	s.events = append(s.events, tenantID+":"+event)
	return nil
}

func TestCreateTenantIsActive(t *testing.T) {
	ctx := context.Background()
	sink := &memorySink{}
	m := New(NewMemoryStore(), testCatalog(), sink)

	ten, err := m.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, ten.Status)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "t1:tenant.created", sink.events[0])
}

func TestSuspendActivateLifecycle(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)

	suspended, err := m.Suspend(ctx, "t1", "fraud review", "ops@corp")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, suspended.Status)

	activated, err := m.Activate(ctx, "t1", "ops@corp")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, activated.Status)
}

func TestPauseRequiresActive(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)
	_, err = m.Suspend(ctx, "t1", "", "")
	require.NoError(t, err)

	_, err = m.Pause(ctx, "t1", "")
	assert.Error(t, err, "pause must be refused from suspended state")
}

func TestHardDeleteRequiresMatchingConfirmToken(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)

	assert.Error(t, m.HardDelete(ctx, "t1", "wrong-token", ""), "mismatched token must be refused")
	assert.NoError(t, m.HardDelete(ctx, "t1", "t1", "ops@corp"))
}

// TestPlanDowngradeBlockedOverLimitS8 exercises scenario S8: a downgrade
// must be refused if current usage exceeds the target plan's limits.
func TestPlanDowngradeBlockedOverLimitS8(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "pro", nil)
	require.NoError(t, err)

	result, err := m.ChangePlan(ctx, "t1", "free", Usage{RunsThisMonth: 500, Repos: 1, Members: 1})
	require.NoError(t, err)
	assert.False(t, result.Allowed, "downgrade over limits must be blocked")
	assert.Len(t, result.Reasons, 1)
}

func TestPlanDowngradeAllowedWithinLimits(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "pro", nil)
	require.NoError(t, err)

	result, err := m.ChangePlan(ctx, "t1", "free", Usage{RunsThisMonth: 5, Repos: 1, Members: 1})
	require.NoError(t, err)
	require.True(t, result.Allowed, "reasons: %v", result.Reasons)
	assert.Equal(t, "free", result.Tenant.Plan)
}

func TestPlanChangeRefusedForStaleTierSchema(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	m := New(NewMemoryStore(), catalog, nil)
	_, err := m.Create(ctx, "t1", "pro", nil)
	require.NoError(t, err)

	staleCatalog := NewStaticCatalog(
		Tier{Plan: "free", SchemaVersion: MustVersion("0.9.0"), Limits: Limits{RunsPerMonth: 100}},
	)
	staleManager := New(NewMemoryStore(), staleCatalog, nil)
	_, err = staleManager.Create(ctx, "t2", "free", nil)
	require.NoError(t, err)
	// Simulate the tenant having last seen a newer tier schema than what
	// staleCatalog now serves.
	store := staleManager.store.(*MemoryStore)
	ten, _, err := store.Get(ctx, "t2")
	require.NoError(t, err)
	ten.PlanSchemaVersion = MustVersion("1.0.0")
	require.NoError(t, store.Put(ctx, ten))

	_, err = staleManager.ChangePlan(ctx, "t2", "free", Usage{})
	assert.Error(t, err, "plan change against a stale tier schema must be refused")
}

func TestCreateUnknownPlanFails(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore(), testCatalog(), nil)
	_, err := m.Create(ctx, "t1", "nonexistent", nil)
	assert.Error(t, err)
}

func TestWithClockAffectsTimestamps(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(NewMemoryStore(), testCatalog(), nil).WithClock(func() time.Time { return fixed })
	ten, err := m.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)
	assert.True(t, ten.CreatedAt.Equal(fixed))
}
