// Package approval is the Capabilities / Approval Gate (G): it maps gated
// mutating operations to required scopes and verifies a signed Approval
// Record against a request before letting the caller proceed. Grounded on
// this codebase's pkg/escalation.Manager (intent/receipt lifecycle) and
// pkg/contracts/approval.go (ApprovalReceipt, scope carriage), generalized
// from "approve a tool call" to "approve a scoped run mutation".
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/runforge/corectl/pkg/run"
)

// Operation is a gated mutating action a run may attempt.
type Operation string

const (
	OpGitCommit    Operation = "git_commit"
	OpGitPush      Operation = "git_push"
	OpPRCreate     Operation = "pr_create"
	OpPRUpdate     Operation = "pr_update"
	OpPRMerge      Operation = "pr_merge"
	OpBranchDelete Operation = "branch_delete"
	OpFileWrite    Operation = "file_write"
)

// Scope is a capability grant carried by an Approval.
type Scope string

const (
	ScopeCommit  Scope = "commit"
	ScopePush    Scope = "push"
	ScopeOpenPR  Scope = "open_pr"
	ScopeMerge   Scope = "merge"
)

// requiredScope maps each gated operation to the scope that authorizes it.
var requiredScope = map[Operation]Scope{
	OpGitCommit:    ScopeCommit,
	OpGitPush:      ScopePush,
	OpPRCreate:     ScopeOpenPR,
	OpPRUpdate:     ScopePush,
	OpPRMerge:      ScopeMerge,
	OpBranchDelete: ScopePush,
	OpFileWrite:    ScopeCommit,
}

// patchAffecting operations must match the approval's patchHash.
var patchAffecting = map[Operation]bool{
	OpGitCommit: true,
	OpGitPush:   true,
	OpPRCreate:  true,
	OpPRUpdate:  true,
	OpFileWrite: true,
}

// Approval is the §3.6 data model: a signed record authorizing a scoped
// mutation against a specific patch hash.
type Approval struct {
	RunID      string    `json:"runId"`
	ApprovedAt time.Time `json:"approvedAt"`
	ApprovedBy string    `json:"approvedBy"`
	Scope      []Scope   `json:"scope"`
	PatchHash  string    `json:"patchHash"`
	Comment    string    `json:"comment,omitempty"`
}

// HasScope reports whether the approval grants the given scope.
func (a Approval) HasScope(s Scope) bool {
	for _, have := range a.Scope {
		if have == s {
			return true
		}
	}
	return false
}

// HashPatch computes patchHash = SHA256(patchContent).
func HashPatch(patchContent []byte) string {
	sum := sha256.Sum256(patchContent)
	return hex.EncodeToString(sum[:])
}

// Request is the operation being checked for approval.
type Request struct {
	RunID     string
	Operation Operation
	PatchHash string
}

// DenialReason is a stable machine-readable denial code.
type DenialReason string

const (
	ReasonNoApproval    DenialReason = "NO_APPROVAL"
	ReasonRunIDMismatch DenialReason = "RUN_ID_MISMATCH"
	ReasonScopeMissing  DenialReason = "SCOPE_MISSING"
	ReasonPatchMismatch DenialReason = "PATCH_MISMATCH"
)

// Result is checkApproval's verdict.
type Result struct {
	Approved bool
	Reason   string
	Scope    Scope
}

// Check implements checkApproval: NO_APPROVAL -> RUN_ID_MISMATCH ->
// SCOPE_MISSING -> PATCH_MISMATCH -> approve, in that fixed order
// (spec §4.6). patchContent, when supplied, is re-hashed and must also
// agree with the approval's patchHash for patch-affecting operations.
func Check(req Request, approval *Approval, patchContent []byte) Result {
	scope, ok := requiredScope[req.Operation]
	if !ok {
		scope = Scope(req.Operation)
	}

	if approval == nil {
		return Result{Approved: false, Reason: string(ReasonNoApproval), Scope: scope}
	}
	if approval.RunID != req.RunID {
		return Result{Approved: false, Reason: string(ReasonRunIDMismatch), Scope: scope}
	}
	if !approval.HasScope(scope) {
		return Result{Approved: false, Reason: string(ReasonScopeMissing) + ": " + string(scope), Scope: scope}
	}
	if patchAffecting[req.Operation] {
		if req.PatchHash != "" && req.PatchHash != approval.PatchHash {
			return Result{Approved: false, Reason: string(ReasonPatchMismatch), Scope: scope}
		}
		if len(patchContent) > 0 && HashPatch(patchContent) != approval.PatchHash {
			return Result{Approved: false, Reason: string(ReasonPatchMismatch), Scope: scope}
		}
	}
	return Result{Approved: true, Scope: scope}
}

// ModeAdmits reports whether a capabilities mode permits gated operations
// at all: comment-only and patch-only admit none, commit-after-approval
// admits every operation in requiredScope (subject to Check still passing).
func ModeAdmits(mode run.CapabilitiesMode, op Operation) bool {
	if mode != run.ModeCommitAfterApproval {
		return false
	}
	_, known := requiredScope[op]
	return known
}

// ExecuteResult is executeIfApproved's outcome.
type ExecuteResult struct {
	Success      bool
	DenialReason string
	Error        error
}

// ExecuteIfApproved runs fn only when mode admits the operation and Check
// approves it; fn's error is surfaced, never swallowed.
func ExecuteIfApproved(mode run.CapabilitiesMode, req Request, approval *Approval, patchContent []byte, fn func() error) ExecuteResult {
	if !ModeAdmits(mode, req.Operation) {
		return ExecuteResult{Success: false, DenialReason: string(ReasonNoApproval)}
	}
	result := Check(req, approval, patchContent)
	if !result.Approved {
		return ExecuteResult{Success: false, DenialReason: result.Reason}
	}
	if err := fn(); err != nil {
		return ExecuteResult{Success: false, Error: err}
	}
	return ExecuteResult{Success: true}
}
