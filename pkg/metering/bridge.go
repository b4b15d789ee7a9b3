package metering

import (
	"context"
	"sync"
)

// SubscriptionEventType enumerates the Stripe-like events the bridge
// projects to tenant plan state.
type SubscriptionEventType string

const (
	EventSubscriptionCreated    SubscriptionEventType = "customer.subscription.created"
	EventSubscriptionUpdated    SubscriptionEventType = "customer.subscription.updated"
	EventInvoicePaid            SubscriptionEventType = "invoice.paid"
	EventInvoicePaymentFailed   SubscriptionEventType = "invoice.payment_failed"
)

// SubscriptionEvent is a single payment-provider webhook payload, reduced
// to the fields the bridge needs.
type SubscriptionEvent struct {
	ID       string
	Type     SubscriptionEventType
	TenantID string
	Plan     string
}

// PlanChanger applies the tenant-state side effect of a projected event.
type PlanChanger interface {
	ChangePlan(ctx context.Context, tenantID, plan string) error
	SuspendForPaymentFailure(ctx context.Context, tenantID string) error
	Reactivate(ctx context.Context, tenantID string) error
}

// MeteringBridge projects payment-provider subscription lifecycle events
// into tenant plan changes, idempotent on event ID — grounded on this
// codebase's pkg/budget enforcer's fail-closed, single-writer update
// pattern, extended here with an event-ID dedupe set since Stripe
// redelivers webhooks at-least-once.
type MeteringBridge struct {
	mu       sync.Mutex
	seen     map[string]bool
	changer  PlanChanger
}

// NewMeteringBridge constructs a bridge delegating plan changes to changer.
func NewMeteringBridge(changer PlanChanger) *MeteringBridge {
	return &MeteringBridge{seen: make(map[string]bool), changer: changer}
}

// Project applies event's effect exactly once per event ID; redeliveries
// of an applied event are no-ops returning nil. An event whose effect
// fails to apply is forgotten, so its redelivery is applied again.
func (b *MeteringBridge) Project(ctx context.Context, event SubscriptionEvent) error {
	b.mu.Lock()
	if b.seen[event.ID] {
		b.mu.Unlock()
		return nil
	}
	b.seen[event.ID] = true
	b.mu.Unlock()

	var err error
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		err = b.changer.ChangePlan(ctx, event.TenantID, event.Plan)
	case EventInvoicePaid:
		err = b.changer.Reactivate(ctx, event.TenantID)
	case EventInvoicePaymentFailed:
		err = b.changer.SuspendForPaymentFailure(ctx, event.TenantID)
	}
	if err != nil {
		b.mu.Lock()
		delete(b.seen, event.ID)
		b.mu.Unlock()
	}
	return err
}
