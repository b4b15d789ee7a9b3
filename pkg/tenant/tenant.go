// Package tenant is the Tenant Lifecycle component (N): creation,
// suspend/activate/pause/delete/hardDelete, and plan-change validation.
// Grounded on this codebase's pkg/tenants (provisioning, status enum) and
// pkg/tiers (plan limit schema), generalized to an arbitrary,
// semver-versioned tier table so a downgrade is validated against the
// tier definition a tenant was actually provisioned under rather than
// whatever tier table happens to be loaded in memory.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Status is a tenant's lifecycle state.
type Status string

const (
	StatusActive      Status = "active"
	StatusSuspended    Status = "suspended"
	StatusPaused      Status = "paused"
	StatusDeactivated Status = "deactivated"
)

// Limits mirrors pkg/metering.Limits' -1-is-unlimited convention, scoped
// to what plan-change validation needs to check.
type Limits struct {
	RunsPerMonth int64
	Repos        int64
	Members      int64
}

func withinLimit(usage, limit int64) bool {
	return limit < 0 || usage <= limit
}

// Tier is a versioned plan definition. SchemaVersion lets a downgrade
// check refuse to evaluate against a tier table older than the tenant's
// last-seen tier version, so a tier-table format change can never
// silently relax a limit check.
type Tier struct {
	Plan          string
	SchemaVersion *semver.Version
	Limits        Limits
}

// Usage is the tenant's current consumption along the dimensions a
// plan-change check validates.
type Usage struct {
	RunsThisMonth int64
	Repos         int64
	Members       int64
}

// Settings holds tenant-specific configuration overrides.
type Settings map[string]any

// Tenant is the §4.14 data model.
type Tenant struct {
	ID             string
	OrgID          string
	OrgLogin       string
	DisplayName    string
	InstallationID string
	InstalledBy    string
	Plan           string
	PlanLimits     Limits
	PlanSchemaVersion *semver.Version
	Status         Status
	RunsThisMonth  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Settings       Settings
}

// AuditSink receives a lifecycle event on every state-changing operation.
type AuditSink interface {
	Record(ctx context.Context, tenantID, event string, detail map[string]any) error
}

// Store persists tenants.
type Store interface {
	Put(ctx context.Context, t Tenant) error
	Get(ctx context.Context, tenantID string) (Tenant, bool, error)
}

// TierCatalog resolves a plan name to its current versioned definition.
type TierCatalog interface {
	Tier(plan string) (Tier, bool)
}

// Manager implements create/suspend/activate/pause/delete/hardDelete and
// plan-change validation.
type Manager struct {
	store   Store
	catalog TierCatalog
	audit   AuditSink
	clock   func() time.Time
}

// New constructs a Manager.
func New(store Store, catalog TierCatalog, audit AuditSink) *Manager {
	return &Manager{store: store, catalog: catalog, audit: audit, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

func (m *Manager) emit(ctx context.Context, tenantID, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(ctx, tenantID, event, detail)
}

// Create provisions a new tenant with status=active and initialized
// counters, then emits an audit event.
func (m *Manager) Create(ctx context.Context, id string, plan string, settings Settings) (Tenant, error) {
	tier, ok := m.catalog.Tier(plan)
	if !ok {
		return Tenant{}, fmt.Errorf("tenant: unknown plan %q", plan)
	}
	now := m.clock()
	t := Tenant{
		ID: id, Plan: plan, PlanLimits: tier.Limits, PlanSchemaVersion: tier.SchemaVersion,
		Status: StatusActive, CreatedAt: now, UpdatedAt: now, Settings: settings,
	}
	if err := m.store.Put(ctx, t); err != nil {
		return Tenant{}, err
	}
	m.emit(ctx, id, "tenant.created", map[string]any{"plan": plan})
	return t, nil
}

func (m *Manager) transition(ctx context.Context, tenantID string, allowed []Status, next Status, event string, by, reason string) (Tenant, error) {
	t, ok, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return Tenant{}, err
	}
	if !ok {
		return Tenant{}, fmt.Errorf("tenant: %s not found", tenantID)
	}
	valid := false
	for _, s := range allowed {
		if t.Status == s {
			valid = true
			break
		}
	}
	if !valid {
		return Tenant{}, fmt.Errorf("tenant: cannot move %s from %s to %s", tenantID, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = m.clock()
	if err := m.store.Put(ctx, t); err != nil {
		return Tenant{}, err
	}
	m.emit(ctx, tenantID, event, map[string]any{"reason": reason, "by": by})
	return t, nil
}

// Suspend moves active -> suspended.
func (m *Manager) Suspend(ctx context.Context, tenantID, reason, by string) (Tenant, error) {
	return m.transition(ctx, tenantID, []Status{StatusActive, StatusPaused}, StatusSuspended, "tenant.suspended", by, reason)
}

// Activate moves suspended -> active.
func (m *Manager) Activate(ctx context.Context, tenantID, by string) (Tenant, error) {
	return m.transition(ctx, tenantID, []Status{StatusSuspended, StatusPaused}, StatusActive, "tenant.activated", by, "")
}

// Pause moves active -> paused.
func (m *Manager) Pause(ctx context.Context, tenantID, by string) (Tenant, error) {
	return m.transition(ctx, tenantID, []Status{StatusActive}, StatusPaused, "tenant.paused", by, "")
}

// Delete is a soft, recoverable delete to deactivated.
func (m *Manager) Delete(ctx context.Context, tenantID, by string) (Tenant, error) {
	return m.transition(ctx, tenantID, []Status{StatusActive, StatusSuspended, StatusPaused}, StatusDeactivated, "tenant.deleted", by, "")
}

// HardDelete requires confirmToken to equal tenantID or the operation is
// refused. It sets the tenant's status to deactivated and emits
// tenant.hard_deleted; the record stays in the Store, which has no delete
// operation.
func (m *Manager) HardDelete(ctx context.Context, tenantID, confirmToken, by string) error {
	if confirmToken != tenantID {
		return fmt.Errorf("tenant: hard delete refused, confirmToken mismatch")
	}
	t, ok, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tenant: %s not found", tenantID)
	}
	t.Status = StatusDeactivated
	t.UpdatedAt = m.clock()
	if err := m.store.Put(ctx, t); err != nil {
		return err
	}
	m.emit(ctx, tenantID, "tenant.hard_deleted", map[string]any{"by": by})
	return nil
}

// ChangePlanResult is ChangePlan's outcome.
type ChangePlanResult struct {
	Allowed  bool
	Reasons  []string
	Tenant   Tenant
}

// ChangePlan validates a plan change by walking current usage against the
// target plan's limits; it refuses if any dimension would exceed, and it
// refuses outright if the target tier's schema is older than the
// tenant's last-seen tier schema version (a stale tier table must never
// be allowed to silently relax a limit check).
func (m *Manager) ChangePlan(ctx context.Context, tenantID, targetPlan string, usage Usage) (ChangePlanResult, error) {
	t, ok, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return ChangePlanResult{}, err
	}
	if !ok {
		return ChangePlanResult{}, fmt.Errorf("tenant: %s not found", tenantID)
	}
	target, ok := m.catalog.Tier(targetPlan)
	if !ok {
		return ChangePlanResult{}, fmt.Errorf("tenant: unknown plan %q", targetPlan)
	}
	if t.PlanSchemaVersion != nil && target.SchemaVersion != nil && target.SchemaVersion.LessThan(t.PlanSchemaVersion) {
		return ChangePlanResult{}, fmt.Errorf(
			"tenant: refusing plan change, target tier schema %s is older than tenant's last-seen %s",
			target.SchemaVersion, t.PlanSchemaVersion,
		)
	}

	var reasons []string
	if !withinLimit(usage.RunsThisMonth, target.Limits.RunsPerMonth) {
		reasons = append(reasons, fmt.Sprintf("runsThisMonth %d exceeds target limit %d", usage.RunsThisMonth, target.Limits.RunsPerMonth))
	}
	if !withinLimit(usage.Repos, target.Limits.Repos) {
		reasons = append(reasons, fmt.Sprintf("repos %d exceeds target limit %d", usage.Repos, target.Limits.Repos))
	}
	if !withinLimit(usage.Members, target.Limits.Members) {
		reasons = append(reasons, fmt.Sprintf("members %d exceeds target limit %d", usage.Members, target.Limits.Members))
	}
	if len(reasons) > 0 {
		return ChangePlanResult{Allowed: false, Reasons: reasons, Tenant: t}, nil
	}

	t.Plan = targetPlan
	t.PlanLimits = target.Limits
	t.PlanSchemaVersion = target.SchemaVersion
	t.UpdatedAt = m.clock()
	if err := m.store.Put(ctx, t); err != nil {
		return ChangePlanResult{}, err
	}
	m.emit(ctx, tenantID, "tenant.plan_changed", map[string]any{"plan": targetPlan})
	return ChangePlanResult{Allowed: true, Tenant: t}, nil
}
