// Package metering is Metering & Entitlements (K): usage-event ingest with
// daily/monthly aggregation, plan-derived entitlement checks, 402/429
// enforcement envelopes, and a Stripe-like idempotent subscription bridge.
// Grounded on this codebase's pkg/budget.SimpleEnforcer (fail-closed
// check-then-record, period-rollover-on-read) and pkg/tiers (plan limit
// schema), generalized from a single cost-amount budget to the spec's
// multi-resource entitlement table.
package metering

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrEmptyTenantID    = errors.New("metering: tenant_id must not be empty")
	ErrNegativeQuantity = errors.New("metering: quantity must not be negative")
	ErrInvalidEventType = errors.New("metering: event_type must not be empty")
)

// Event is the §3.9 usage event.
type Event struct {
	ID         string
	TenantID   string
	Type       string
	Quantity   int64
	OccurredAt time.Time
	Metadata   map[string]string
}

// Validate checks that the event has the fields record needs, adapted
// from this codebase's pkg/metering validation convention.
func (e Event) Validate() error {
	if e.TenantID == "" {
		return ErrEmptyTenantID
	}
	if e.Quantity < 0 {
		return ErrNegativeQuantity
	}
	if e.Type == "" {
		return ErrInvalidEventType
	}
	return nil
}

// Bucket identifies a daily or monthly aggregation window.
type Bucket string

// DailyBucket/MonthlyBucket format occurredAt into the bucket key used to
// aggregate events, e.g. "2026-07-31" / "2026-07".
func DailyBucket(t time.Time) Bucket   { return Bucket(t.UTC().Format("2006-01-02")) }
func MonthlyBucket(t time.Time) Bucket { return Bucket(t.UTC().Format("2006-01")) }

// Aggregate is the running total for (tenantID, bucket), split per event type.
type Aggregate struct {
	TenantID string
	Bucket   Bucket
	Counts   map[string]int64
}

// Store is the metering persistence contract. Each method is a separate
// write or read; the contract has no transaction spanning the event log
// and the aggregate windows.
type Store interface {
	AppendEvent(ctx context.Context, e Event) error
	IncrementAggregate(ctx context.Context, tenantID string, bucket Bucket, eventType string, amount int64) error
	GetAggregate(ctx context.Context, tenantID string, bucket Bucket) (Aggregate, error)
	EventsInBucket(ctx context.Context, tenantID string, bucket Bucket) ([]Event, error)
}

// Limits mirrors a plan's resource ceilings; -1 means unlimited, grounded
// on this codebase's pkg/tiers.Limits convention.
type Limits struct {
	RunsPerDay    int64
	RunsPerMonth  int64
	SignalsPerDay int64
	Repos         int64
	Members       int64
}

func limitFor(l Limits, resource string) int64 {
	switch resource {
	case "runs_per_day":
		return l.RunsPerDay
	case "runs_per_month":
		return l.RunsPerMonth
	case "signals_per_day":
		return l.SignalsPerDay
	case "repos":
		return l.Repos
	case "members":
		return l.Members
	default:
		return -1
	}
}

// resourceBucket decides which window a resource's usage is measured over.
func resourceBucket(resource string, now time.Time) Bucket {
	switch resource {
	case "runs_per_month":
		return MonthlyBucket(now)
	default:
		return DailyBucket(now)
	}
}

// resourceEventType maps an entitlement resource to the event type whose
// quantity counts toward it.
var resourceEventType = map[string]string{
	"runs_per_day":    "run_started",
	"runs_per_month":  "run_started",
	"signals_per_day": "signal_ingested",
}

// EntitlementResult is checkEntitlement's return value.
type EntitlementResult struct {
	Allowed bool
	Current int64
	Limit   int64
	Reason  string
}

// Meter is the component implementing record/checkEntitlement/enforceLimit.
type Meter struct {
	store Store
	clock func() time.Time
	mu    sync.Mutex
}

// New constructs a Meter over the given store.
func New(store Store) *Meter {
	return &Meter{store: store, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Meter) WithClock(clock func() time.Time) *Meter {
	m.clock = clock
	return m
}

// Record appends the event and updates both aggregate windows while
// holding the meter's mutex, so Records through one Meter never
// interleave. The three store calls are not rolled back: if a later one
// fails, the writes before it stay in the store.
func (m *Meter) Record(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = m.clock().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.AppendEvent(ctx, e); err != nil {
		return err
	}
	if err := m.store.IncrementAggregate(ctx, e.TenantID, DailyBucket(e.OccurredAt), e.Type, e.Quantity); err != nil {
		return err
	}
	return m.store.IncrementAggregate(ctx, e.TenantID, MonthlyBucket(e.OccurredAt), e.Type, e.Quantity)
}

// CheckEntitlement evaluates whether tenantID may consume amount more of
// resource under limits, without recording anything.
func (m *Meter) CheckEntitlement(ctx context.Context, tenantID, resource string, amount int64, limits Limits) (EntitlementResult, error) {
	if amount <= 0 {
		amount = 1
	}
	limit := limitFor(limits, resource)
	if limit < 0 {
		return EntitlementResult{Allowed: true, Limit: -1}, nil
	}

	bucket := resourceBucket(resource, m.clock())
	agg, err := m.store.GetAggregate(ctx, tenantID, bucket)
	if err != nil {
		return EntitlementResult{}, err
	}
	eventType := resourceEventType[resource]
	current := agg.Counts[eventType]

	if current+amount > limit {
		return EntitlementResult{
			Allowed: false, Current: current, Limit: limit,
			Reason: "quota exceeded for " + resource,
		}, nil
	}
	return EntitlementResult{Allowed: true, Current: current, Limit: limit}, nil
}

// DenialEnvelope is the §6.4 enforcement envelope.
type DenialEnvelope struct {
	Status            int    `json:"status"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	Detail            string `json:"detail,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Limit             int64  `json:"limit"`
	Current           int64  `json:"current"`
	Resource          string `json:"resource"`
	UpgradeHint       string `json:"upgradeHint,omitempty"`
}

// Build402Response builds a quota/plan denial envelope (no retry, carries
// an upgrade hint).
func Build402Response(resource string, current, limit int64, upgradeHint string) DenialEnvelope {
	return DenialEnvelope{
		Status: 402, Code: "ENTITLEMENT_EXCEEDED",
		Message: "plan limit exceeded for " + resource,
		Limit:   limit, Current: current, Resource: resource,
		UpgradeHint: upgradeHint,
	}
}

// Build429Response builds a rate-limit denial envelope with a
// retryAfterSeconds hint.
func Build429Response(resource string, current, limit int64, retryAfterSeconds int) DenialEnvelope {
	return DenialEnvelope{
		Status: 429, Code: "RATE_LIMITED",
		Message: "rate limit exceeded for " + resource,
		Limit:   limit, Current: current, Resource: resource,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// EnforceDecision is enforceLimit's combined verdict.
type EnforceDecision struct {
	Allowed  bool
	Envelope *DenialEnvelope
}

// EnforceLimit checks entitlement and constructs the appropriate 402
// envelope on denial; rate-limit (429) denials are constructed by the
// caller from reliability.RateLimiter's result using Build429Response,
// since only the reliability package knows the window's resetAt.
func (m *Meter) EnforceLimit(ctx context.Context, tenantID, resource string, amount int64, limits Limits, upgradeHint string) (EnforceDecision, error) {
	result, err := m.CheckEntitlement(ctx, tenantID, resource, amount, limits)
	if err != nil {
		return EnforceDecision{}, err
	}
	if result.Allowed {
		return EnforceDecision{Allowed: true}, nil
	}
	envelope := Build402Response(resource, result.Current, result.Limit, upgradeHint)
	return EnforceDecision{Allowed: false, Envelope: &envelope}, nil
}
