// Package run is the Run Context (E): the aggregate over the artifact
// store (A), state machine (C), per-run audit log (B), and run index (D)
// that creates, loads, and mutates runs under terminal-state guards.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runforge/corectl/pkg/auditlog"
	"github.com/runforge/corectl/pkg/bundle"
	"github.com/runforge/corectl/pkg/corerr"
	"github.com/runforge/corectl/pkg/runindex"
	"github.com/runforge/corectl/pkg/runstate"
)

// SchemaVersion is written into every run.json for forward compatibility.
const SchemaVersion = 1

// CapabilitiesMode constrains which gated operations a run may reach (G).
type CapabilitiesMode string

const (
	ModeCommentOnly         CapabilitiesMode = "comment-only"
	ModePatchOnly            CapabilitiesMode = "patch-only"
	ModeCommitAfterApproval CapabilitiesMode = "commit-after-approval"
)

// Repo is the immutable repository descriptor §3.1 names.
type Repo struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
}

// StateEntry records one point in a run's transition history.
type StateEntry struct {
	State    runstate.State `json:"state"`
	EnteredAt time.Time     `json:"enteredAt"`
}

// Run is the §3.1 / §6.2 data model, serialized as run.json.
type Run struct {
	RunID            string            `json:"runId"`
	TenantID         string            `json:"tenantId"`
	Repo             Repo              `json:"repo"`
	State            runstate.State    `json:"state"`
	PreviousStates   []StateEntry      `json:"previousStates"`
	CapabilitiesMode CapabilitiesMode  `json:"capabilitiesMode"`
	Models           map[string]string `json:"models,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	DurationMs       *int64            `json:"durationMs,omitempty"`
	Initiator        string            `json:"initiator"`
	PRUrl            string            `json:"prUrl,omitempty"`
	BaseRef          string            `json:"baseRef,omitempty"`
	HeadRef          string            `json:"headRef,omitempty"`
	Error            string            `json:"error,omitempty"`
	ErrorDetails     map[string]any    `json:"errorDetails,omitempty"`
	Version          int               `json:"version"`
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	TenantID         string
	Repo             Repo
	Initiator        string
	CapabilitiesMode CapabilitiesMode
	PRUrl            string
	BaseRef          string
	HeadRef          string
	Models           map[string]string
}

// Context is the E aggregate, composing A/B/C/D for one control plane.
type Context struct {
	bundles *bundle.Store
	audit   *auditlog.Log
	index   runindex.Index
	clock   func() time.Time
}

// New constructs a run Context. clock defaults to time.Now for production
// use; tests may inject a fixed clock via WithClock.
func New(bundles *bundle.Store, audit *auditlog.Log, index runindex.Index) *Context {
	return &Context{bundles: bundles, audit: audit, index: index, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock, mirroring this codebase's escalation
// manager's clock-injection pattern for deterministic tests.
func (c *Context) WithClock(clock func() time.Time) *Context {
	c.clock = clock
	return c
}

// Create writes run.json, emits a run_created audit entry, and indexes the
// new run.
func (c *Context) Create(ctx context.Context, req CreateRequest) (*Run, error) {
	mode := req.CapabilitiesMode
	if mode == "" {
		mode = ModePatchOnly
	}
	now := c.clock()
	r := &Run{
		RunID:            uuid.New().String(),
		TenantID:         req.TenantID,
		Repo:             req.Repo,
		State:            runstate.Queued,
		PreviousStates:   []StateEntry{{State: runstate.Queued, EnteredAt: now}},
		CapabilitiesMode: mode,
		Models:           req.Models,
		CreatedAt:        now,
		UpdatedAt:        now,
		Initiator:        req.Initiator,
		PRUrl:            req.PRUrl,
		BaseRef:          req.BaseRef,
		HeadRef:          req.HeadRef,
		Version:          SchemaVersion,
	}

	if err := c.save(ctx, r); err != nil {
		return nil, err
	}
	if _, err := c.audit.Append(ctx, r.RunID, r.Initiator, "", "run_created", map[string]any{
		"repo": r.Repo.FullName,
	}); err != nil {
		return nil, fmt.Errorf("run: audit run_created: %w", err)
	}
	if err := c.index.Put(ctx, r.RunID, runindex.Entry{
		RunID: r.RunID, TenantID: r.TenantID, Repo: r.Repo.FullName,
		State: string(r.State), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}); err != nil {
		return nil, fmt.Errorf("run: index put: %w", err)
	}
	return r, nil
}

func (c *Context) save(ctx context.Context, r *Run) error {
	return c.bundles.WriteJSON(ctx, r.RunID, bundle.ArtifactRun, func() ([]byte, error) {
		return json.Marshal(r)
	})
}

// Load reads run.json, returning a Not-found error if absent.
func (c *Context) Load(ctx context.Context, runID string) (*Run, error) {
	data, err := c.bundles.Read(ctx, runID, bundle.ArtifactRun)
	if err != nil {
		if err == bundle.ErrNotFound {
			return nil, corerr.New(corerr.KindNotFound, "run.not_found", fmt.Sprintf("run %s not found", runID))
		}
		return nil, fmt.Errorf("run: load: %w", err)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, corerr.Wrap(corerr.KindFatal, "run.corrupt_artifact", "run.json is not valid JSON", err)
	}
	return &r, nil
}

// Transition validates and applies a state change, appending history and a
// state_transition audit entry. Never mutates from a terminal state.
func (c *Context) Transition(ctx context.Context, runID string, to runstate.State) (*Run, error) {
	r, err := c.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if runstate.Terminal(r.State) {
		return nil, corerr.New(corerr.KindValidation, "run.terminal",
			fmt.Sprintf("run %s is terminal in state %s", runID, r.State))
	}
	if err := runstate.Validate(r.State, to, runID); err != nil {
		return nil, err
	}

	now := c.clock()
	from := r.State
	r.State = to
	r.PreviousStates = append(r.PreviousStates, StateEntry{State: to, EnteredAt: now})
	r.UpdatedAt = now
	if runstate.Terminal(to) {
		r.CompletedAt = &now
		d := now.Sub(r.CreatedAt).Milliseconds()
		r.DurationMs = &d
	}

	if err := c.save(ctx, r); err != nil {
		return nil, err
	}
	if _, err := c.audit.Append(ctx, runID, "system", "", "state_transition", map[string]any{
		"from": string(from), "to": string(to),
	}); err != nil {
		return nil, fmt.Errorf("run: audit state_transition: %w", err)
	}
	_ = c.index.Put(ctx, runID, runindex.Entry{
		RunID: r.RunID, TenantID: r.TenantID, Repo: r.Repo.FullName,
		State: string(r.State), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	})
	return r, nil
}

// Fail sets state=failed if not already terminal. A second call preserves
// the first error's message (idempotent per §4.3/§7).
func (c *Context) Fail(ctx context.Context, runID string, failErr error, details map[string]any) (*Run, error) {
	return c.terminalize(ctx, runID, runstate.Failed, failErr.Error(), details)
}

// Abort sets state=aborted with a reason, following the same idempotent
// terminalization as Fail.
func (c *Context) Abort(ctx context.Context, runID, reason string) (*Run, error) {
	return c.terminalize(ctx, runID, runstate.Aborted, reason, nil)
}

func (c *Context) terminalize(ctx context.Context, runID string, to runstate.State, message string, details map[string]any) (*Run, error) {
	r, err := c.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if runstate.Terminal(r.State) {
		// Idempotent: preserve whatever was recorded first.
		return r, nil
	}

	now := c.clock()
	from := r.State
	r.State = to
	r.Error = message
	r.ErrorDetails = details
	r.PreviousStates = append(r.PreviousStates, StateEntry{State: to, EnteredAt: now})
	r.UpdatedAt = now
	r.CompletedAt = &now
	d := now.Sub(r.CreatedAt).Milliseconds()
	r.DurationMs = &d

	if err := c.save(ctx, r); err != nil {
		return nil, err
	}
	action := "state_transition"
	if _, err := c.audit.Append(ctx, runID, "system", "", action, map[string]any{
		"from": string(from), "to": string(to), "error": message,
	}); err != nil {
		return nil, fmt.Errorf("run: audit terminalize: %w", err)
	}
	_ = c.index.Put(ctx, runID, runindex.Entry{
		RunID: r.RunID, TenantID: r.TenantID, Repo: r.Repo.FullName,
		State: string(r.State), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	})
	return r, nil
}

// Progress returns the run's current 0..100 progress.
func Progress(r *Run) int {
	return runstate.Progress(r.State)
}
