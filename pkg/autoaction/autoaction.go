// Package autoaction is the Auto-Actions Engine (O): register/list/update/
// delete actions and policies per tenant, match alerts to actions, and
// dispatch with rate-limit and circuit-breaker protection. Grounded on
// this codebase's pkg/reliability (shared rate limiter/circuit breaker/
// retry primitives) for the execution guard rails, and on
// pkg/runtime/sandbox's deny-by-default wazero sandbox for the wasm
// adapter variant.
package autoaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/corectl/pkg/reliability"
)

// TriggerType names what kind of alert can fire a trigger.
type TriggerType string

// Trigger is one of an action's firing conditions; all specified filters
// must pass for the trigger to match (§4.13).
type Trigger struct {
	Type          TriggerType
	SeverityFilter string
	RuleFilter    string // optional CEL expression, evaluated by a Matcher
	LabelFilter   map[string]string
	DelaySeconds  int
}

// AdapterType selects the dispatch implementation for an action.
type AdapterType string

const (
	AdapterWebhook AdapterType = "webhook"
	AdapterEmail   AdapterType = "email"
	AdapterSlack   AdapterType = "slack"
	AdapterWasm    AdapterType = "wasm"
)

// Action is a registered tenant automation, tagged by AdapterType with a
// type-specific Config payload interpreted by the matching adapter.
type Action struct {
	ID        string
	TenantID  string
	Type      AdapterType
	Config    map[string]any
	Triggers  []Trigger
	RateLimit *reliability.ResourceLimit
	Breaker   *reliability.CircuitBreakerConfig
	Retry     *reliability.RetryConfig
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Alert is the minimal event shape the engine matches and dispatches on.
type Alert struct {
	ID       string
	TenantID string
	Severity string
	RuleID   string
	Labels   map[string]string
}

// ExecutionState tracks an Execution's lifecycle.
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateRunning   ExecutionState = "running"
	StateCompleted ExecutionState = "completed"
	StateFailed    ExecutionState = "failed"
	StateSkipped   ExecutionState = "skipped"
)

// Execution is one invocation of an Action.
type Execution struct {
	ID          string
	ActionID    string
	AlertID     string
	TriggerType TriggerType
	State       ExecutionState
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMs  *int64
	Result      string
	Error       string
	RetryCount  int
	TriggeredBy string
}

// AuditEvent is the per-execution audit entry emitted by executeAction
// (§4.13's fixed shape).
type AuditEvent struct {
	Timestamp   time.Time
	ActionID    string
	ExecutionID string
	TenantID    string
	TriggerType TriggerType
	AlertID     string
	State       ExecutionState
	DurationMs  *int64
	Error       string
	TriggeredBy string
}

// AuditSink receives one AuditEvent per execution.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// Adapter dispatches an Action against an Alert (or a manual trigger with
// alert == nil), returning a human-readable result on success.
type Adapter interface {
	Dispatch(ctx context.Context, action Action, alert *Alert) (string, error)
}

// Matcher evaluates an optional CEL rule filter against an alert; nil
// Matcher means rule filters are treated as always-matching.
type Matcher interface {
	Match(ctx context.Context, expression string, alert Alert) (bool, error)
}

// Store persists registered actions per tenant.
type Store interface {
	Put(ctx context.Context, action Action) error
	Get(ctx context.Context, tenantID, actionID string) (Action, bool, error)
	List(ctx context.Context, tenantID string) ([]Action, error)
	Delete(ctx context.Context, tenantID, actionID string) error
}

// Engine is the component implementing register/findMatchingActions/
// executeAction/processAlert.
type Engine struct {
	mu         sync.Mutex
	store      Store
	adapters   map[AdapterType]Adapter
	matcher    Matcher
	audit      AuditSink
	limiters   map[string]*reliability.RateLimiter
	breakers   map[string]*reliability.CircuitBreaker
	clock      func() time.Time
}

// New constructs an Engine over store, dispatching through adapters keyed
// by AdapterType (the tagged-variant dispatch named in design notes).
func New(store Store, adapters map[AdapterType]Adapter, audit AuditSink) *Engine {
	return &Engine{
		store:    store,
		adapters: adapters,
		audit:    audit,
		limiters: make(map[string]*reliability.RateLimiter),
		breakers: make(map[string]*reliability.CircuitBreaker),
		clock:    time.Now,
	}
}

// WithMatcher attaches a CEL-backed rule filter evaluator.
func (e *Engine) WithMatcher(m Matcher) *Engine {
	e.matcher = m
	return e
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Register creates or replaces an action.
func (e *Engine) Register(ctx context.Context, action Action) (Action, error) {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	now := e.clock()
	action.UpdatedAt = now
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	if err := e.store.Put(ctx, action); err != nil {
		return Action{}, err
	}
	return action, nil
}

// Update mutates an existing action via fn and persists the result.
func (e *Engine) Update(ctx context.Context, tenantID, actionID string, fn func(*Action)) (Action, error) {
	action, ok, err := e.store.Get(ctx, tenantID, actionID)
	if err != nil {
		return Action{}, err
	}
	if !ok {
		return Action{}, fmt.Errorf("autoaction: action %s not found for tenant %s", actionID, tenantID)
	}
	fn(&action)
	action.UpdatedAt = e.clock()
	if err := e.store.Put(ctx, action); err != nil {
		return Action{}, err
	}
	return action, nil
}

// List returns all actions registered for tenantID.
func (e *Engine) List(ctx context.Context, tenantID string) ([]Action, error) {
	return e.store.List(ctx, tenantID)
}

// Delete removes an action.
func (e *Engine) Delete(ctx context.Context, tenantID, actionID string) error {
	return e.store.Delete(ctx, tenantID, actionID)
}

func matchesFilters(trigger Trigger, triggerType TriggerType, alert Alert, matcher Matcher, ctx context.Context) (bool, error) {
	if trigger.Type != triggerType {
		return false, nil
	}
	if trigger.SeverityFilter != "" && trigger.SeverityFilter != alert.Severity {
		return false, nil
	}
	for k, v := range trigger.LabelFilter {
		if alert.Labels[k] != v {
			return false, nil
		}
	}
	if trigger.RuleFilter != "" {
		if matcher == nil {
			return false, fmt.Errorf("autoaction: ruleFilter set but no matcher configured")
		}
		return matcher.Match(ctx, trigger.RuleFilter, alert)
	}
	return true, nil
}

// FindMatchingActions returns enabled actions whose triggers match alert
// on type, severityFilter, ruleFilter, and labelFilter (all specified
// filters must pass).
func (e *Engine) FindMatchingActions(ctx context.Context, alert Alert, triggerType TriggerType) ([]Action, error) {
	actions, err := e.store.List(ctx, alert.TenantID)
	if err != nil {
		return nil, err
	}
	var matched []Action
	for _, action := range actions {
		if !action.Enabled {
			continue
		}
		for _, trigger := range action.Triggers {
			ok, err := matchesFilters(trigger, triggerType, alert, e.matcher, ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, action)
				break
			}
		}
	}
	return matched, nil
}

func (e *Engine) limiterFor(action Action) *reliability.RateLimiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	limiter, ok := e.limiters[action.ID]
	if !ok {
		limiter = reliability.NewRateLimiter()
		if action.RateLimit != nil {
			limiter.Configure(action.ID, *action.RateLimit)
		}
		e.limiters[action.ID] = limiter
	}
	return limiter
}

func (e *Engine) breakerFor(action Action) *reliability.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	breaker, ok := e.breakers[action.ID]
	if !ok {
		cfg := reliability.CircuitBreakerConfig{
			FailureThreshold: 5,
			FailureWindow:    time.Minute,
			SuccessThreshold: 1,
			ResetTimeout:     30 * time.Second,
		}
		if action.Breaker != nil {
			cfg = *action.Breaker
		}
		breaker = reliability.NewCircuitBreaker(cfg)
		e.breakers[action.ID] = breaker
	}
	return breaker
}

func durationPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// ExecuteAction runs a single action (manual trigger or alert-driven),
// guarding dispatch with the action's rate limit and circuit breaker, and
// always emitting an audit entry.
func (e *Engine) ExecuteAction(ctx context.Context, action Action, alert *Alert, triggerType TriggerType, triggeredBy string) Execution {
	started := e.clock()
	exec := Execution{
		ID:          uuid.New().String(),
		ActionID:    action.ID,
		TriggerType: triggerType,
		State:       StatePending,
		StartedAt:   started,
		TriggeredBy: triggeredBy,
	}
	if alert != nil {
		exec.AlertID = alert.ID
	}

	emit := func() {
		if e.audit == nil {
			return
		}
		event := AuditEvent{
			Timestamp: e.clock(), ActionID: action.ID, ExecutionID: exec.ID,
			TenantID: action.TenantID, TriggerType: triggerType, AlertID: exec.AlertID,
			State: exec.State, DurationMs: exec.DurationMs, Error: exec.Error, TriggeredBy: triggeredBy,
		}
		_ = e.audit.Record(ctx, event)
	}

	limiter := e.limiterFor(action)
	if result := limiter.Check(action.TenantID, action.ID); !result.Allowed {
		exec.State = StateSkipped
		exec.Error = "Rate limited"
		emit()
		return exec
	}

	breaker := e.breakerFor(action)
	if !breaker.Allow() {
		exec.State = StateSkipped
		exec.Error = "Circuit breaker open"
		emit()
		return exec
	}

	adapter, ok := e.adapters[action.Type]
	if !ok {
		exec.State = StateFailed
		exec.Error = fmt.Sprintf("no adapter registered for type %q", action.Type)
		breaker.Failure()
		emit()
		return exec
	}

	exec.State = StateRunning
	dispatch := func(ctx context.Context) error {
		result, err := adapter.Dispatch(ctx, action, alert)
		if err != nil {
			return err
		}
		exec.Result = result
		return nil
	}

	var err error
	if action.Retry != nil {
		err = reliability.Retry(ctx, *action.Retry, func(ctx context.Context) error {
			exec.RetryCount++
			return dispatch(ctx)
		})
		if exec.RetryCount > 0 {
			exec.RetryCount--
		}
	} else {
		err = dispatch(ctx)
	}

	completed := e.clock()
	exec.CompletedAt = &completed
	exec.DurationMs = durationPtr(completed.Sub(started))

	if err != nil {
		exec.State = StateFailed
		exec.Error = err.Error()
		breaker.Failure()
	} else {
		exec.State = StateCompleted
		breaker.Success()
	}

	emit()
	return exec
}

// ProcessAlert finds and executes all matching actions, honoring each
// trigger's delaySeconds; delayed executions are queued as goroutines and
// must remain monotone (a later delaySeconds never fires before an
// earlier one for the same action).
func (e *Engine) ProcessAlert(ctx context.Context, alert Alert, triggerType TriggerType) ([]Execution, error) {
	actions, err := e.FindMatchingActions(ctx, alert, triggerType)
	if err != nil {
		return nil, err
	}

	results := make([]Execution, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		delay := triggerDelay(action, triggerType)
		if delay <= 0 {
			results[i] = e.ExecuteAction(ctx, action, &alert, triggerType, "")
			continue
		}
		wg.Add(1)
		go func(idx int, a Action, d time.Duration) {
			defer wg.Done()
			select {
			case <-time.After(d):
				results[idx] = e.ExecuteAction(ctx, a, &alert, triggerType, "")
			case <-ctx.Done():
				results[idx] = Execution{ActionID: a.ID, State: StateSkipped, Error: ctx.Err().Error()}
			}
		}(i, action, delay)
	}
	wg.Wait()
	return results, nil
}

func triggerDelay(action Action, triggerType TriggerType) time.Duration {
	for _, trigger := range action.Triggers {
		if trigger.Type == triggerType && trigger.DelaySeconds > 0 {
			return time.Duration(trigger.DelaySeconds) * time.Second
		}
	}
	return 0
}
