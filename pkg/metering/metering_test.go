package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAggregateConsistencyProperty12 exercises spec property 12: the sum
// of recorded event quantities for (tenant,type,bucket) equals the
// aggregate value for that bucket.
func TestAggregateConsistencyProperty12(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := New(store)

	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	var total int64
	for i := 0; i < 5; i++ {
		qty := int64(i + 1)
		total += qty
		require.NoError(t, m.Record(ctx, Event{TenantID: "t1", Type: "run_started", Quantity: qty, OccurredAt: now}))
	}

	agg, err := store.GetAggregate(ctx, "t1", DailyBucket(now))
	require.NoError(t, err)
	assert.Equal(t, total, agg.Counts["run_started"])

	monthlyAgg, err := store.GetAggregate(ctx, "t1", MonthlyBucket(now))
	require.NoError(t, err)
	assert.Equal(t, total, monthlyAgg.Counts["run_started"])
}

func TestCheckEntitlementDeniesOverLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := New(store)
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	limits := Limits{RunsPerDay: 2}
	for i := 0; i < 2; i++ {
		_ = m.Record(ctx, Event{TenantID: "t1", Type: "run_started", Quantity: 1, OccurredAt: now})
	}

	result, err := m.CheckEntitlement(ctx, "t1", "runs_per_day", 1, limits)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "expected denial once at limit")
	assert.Equal(t, int64(2), result.Current)
	assert.Equal(t, int64(2), result.Limit)
}

func TestUnlimitedResourceAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	m := New(NewMemoryStore())
	result, err := m.CheckEntitlement(ctx, "t1", "runs_per_day", 1000, Limits{RunsPerDay: -1})
	require.NoError(t, err)
	assert.True(t, result.Allowed, "expected unlimited resource to always allow")
}

func TestEnforceLimitBuilds402Envelope(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := New(store)
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	limits := Limits{RunsPerDay: 1}
	_ = m.Record(ctx, Event{TenantID: "t1", Type: "run_started", Quantity: 1, OccurredAt: now})

	decision, err := m.EnforceLimit(ctx, "t1", "runs_per_day", 1, limits, "upgrade to pro")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.NotNil(t, decision.Envelope)
	assert.EqualValues(t, 402, decision.Envelope.Status)
	assert.Equal(t, "upgrade to pro", decision.Envelope.UpgradeHint)
}

func Test429EnvelopeCarriesRetryAfter(t *testing.T) {
	env := Build429Response("api", 2, 2, 30)
	assert.EqualValues(t, 429, env.Status)
	assert.Equal(t, 30, env.RetryAfterSeconds)
}

type fakeChanger struct {
	changedPlan string
	suspended   bool
	reactivated bool
	failNext    bool
}

func (f *fakeChanger) ChangePlan(_ context.Context, _, plan string) error {
	if f.failNext {
		return errors.New("boom")
	}
	f.changedPlan = plan
	return nil
}
func (f *fakeChanger) SuspendForPaymentFailure(_ context.Context, _ string) error {
	f.suspended = true
	return nil
}
func (f *fakeChanger) Reactivate(_ context.Context, _ string) error {
	f.reactivated = true
	return nil
}

func TestMeteringBridgeIdempotentOnEventID(t *testing.T) {
	ctx := context.Background()
	changer := &fakeChanger{}
	bridge := NewMeteringBridge(changer)

	event := SubscriptionEvent{ID: "evt_1", Type: EventSubscriptionCreated, TenantID: "t1", Plan: "pro"}
	require.NoError(t, bridge.Project(ctx, event))
	assert.Equal(t, "pro", changer.changedPlan)

	changer.changedPlan = ""
	require.NoError(t, bridge.Project(ctx, event))
	assert.Empty(t, changer.changedPlan, "expected redelivered event to be a no-op")
}

func TestMeteringBridgePaymentFailureSuspends(t *testing.T) {
	ctx := context.Background()
	changer := &fakeChanger{}
	bridge := NewMeteringBridge(changer)

	require.NoError(t, bridge.Project(ctx, SubscriptionEvent{ID: "evt_2", Type: EventInvoicePaymentFailed, TenantID: "t1"}))
	assert.True(t, changer.suspended, "expected suspension on payment failure")
}
