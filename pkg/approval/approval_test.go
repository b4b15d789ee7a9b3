package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApprovalGateS4 exercises scenario S4 from the spec.
func TestApprovalGateS4(t *testing.T) {
	patch := []byte("diff --git a/x b/x\n+hello\n")
	wrongHash := HashPatch([]byte("diff --git a/y b/y\n+different\n"))

	a := &Approval{
		RunID:      "run-1",
		ApprovedAt: time.Now(),
		ApprovedBy: "reviewer@acme.com",
		Scope:      []Scope{ScopeOpenPR},
		PatchHash:  wrongHash,
	}

	res := Check(Request{RunID: "run-1", Operation: OpPRCreate}, a, patch)
	assert.False(t, res.Approved)
	assert.Equal(t, string(ReasonPatchMismatch), res.Reason, "%+v", res)

	a.PatchHash = HashPatch(patch)
	res = Check(Request{RunID: "run-1", Operation: OpPRMerge}, a, patch)
	assert.False(t, res.Approved)
	assert.Equal(t, "SCOPE_MISSING: merge", res.Reason, "%+v", res)
}

func TestNoApprovalDenies(t *testing.T) {
	res := Check(Request{RunID: "run-1", Operation: OpGitCommit}, nil, nil)
	assert.False(t, res.Approved)
	assert.Equal(t, string(ReasonNoApproval), res.Reason, "%+v", res)
}

func TestRunIDMismatchDenies(t *testing.T) {
	a := &Approval{RunID: "run-2", Scope: []Scope{ScopeCommit}}
	res := Check(Request{RunID: "run-1", Operation: OpGitCommit}, a, nil)
	assert.False(t, res.Approved)
	assert.Equal(t, string(ReasonRunIDMismatch), res.Reason, "%+v", res)
}

// TestScopeMonotonicity exercises spec property 5: approving with scope s
// implies approving with any superset s' of s, same inputs otherwise.
func TestScopeMonotonicity(t *testing.T) {
	patch := []byte("diff content")
	hash := HashPatch(patch)

	narrow := &Approval{RunID: "run-1", Scope: []Scope{ScopeCommit}, PatchHash: hash}
	wide := &Approval{RunID: "run-1", Scope: []Scope{ScopeCommit, ScopePush, ScopeOpenPR}, PatchHash: hash}

	req := Request{RunID: "run-1", Operation: OpGitCommit, PatchHash: hash}
	narrowRes := Check(req, narrow, nil)
	assert.True(t, narrowRes.Approved, "expected narrow scope to approve git_commit, got %+v", narrowRes)
	wideRes := Check(req, wide, nil)
	assert.True(t, wideRes.Approved, "expected wider scope to also approve git_commit, got %+v", wideRes)
}

func TestModeGating(t *testing.T) {
	assert.False(t, ModeAdmits("comment-only", OpGitCommit), "comment-only must admit nothing")
	assert.False(t, ModeAdmits("patch-only", OpGitCommit), "patch-only must admit nothing")
	assert.True(t, ModeAdmits("commit-after-approval", OpGitCommit), "commit-after-approval must admit git_commit")
}

func TestExecuteIfApprovedRunsFnOnlyWhenApproved(t *testing.T) {
	patch := []byte("diff content")
	hash := HashPatch(patch)
	a := &Approval{RunID: "run-1", Scope: []Scope{ScopeCommit}, PatchHash: hash}

	ran := false
	res := ExecuteIfApproved("commit-after-approval", Request{RunID: "run-1", Operation: OpGitCommit, PatchHash: hash}, a, patch, func() error {
		ran = true
		return nil
	})
	require.True(t, res.Success, "%+v", res)
	assert.True(t, ran)

	ran = false
	res = ExecuteIfApproved("patch-only", Request{RunID: "run-1", Operation: OpGitCommit, PatchHash: hash}, a, patch, func() error {
		ran = true
		return nil
	})
	assert.False(t, res.Success, "expected patch-only to deny without running fn, got %+v ran=%v", res, ran)
	assert.False(t, ran)
}

func TestTokenRoundTripPreservesApproval(t *testing.T) {
	key := []byte("test-signing-key")
	approved := Approval{
		RunID:      "run-1",
		ApprovedAt: time.Now().UTC().Truncate(time.Second),
		ApprovedBy: "reviewer@acme.com",
		Scope:      []Scope{ScopeCommit, ScopePush},
		PatchHash:  HashPatch([]byte("diff content")),
		Comment:    "looks good",
	}

	token, err := EncodeToken(approved, key, time.Hour)
	require.NoError(t, err)

	decoded, err := DecodeToken(token, key)
	require.NoError(t, err)
	assert.Equal(t, approved.RunID, decoded.RunID)
	assert.Equal(t, approved.ApprovedAt, decoded.ApprovedAt)
	assert.Equal(t, approved.ApprovedBy, decoded.ApprovedBy)
	assert.Equal(t, approved.Scope, decoded.Scope)
	assert.Equal(t, approved.PatchHash, decoded.PatchHash)
	assert.Equal(t, approved.Comment, decoded.Comment)

	req := Request{RunID: decoded.RunID, Operation: OpGitCommit, PatchHash: decoded.PatchHash}
	res := Check(req, &decoded, nil)
	assert.True(t, res.Approved, "%+v", res)
}

func TestTokenRejectsWrongKey(t *testing.T) {
	token, err := EncodeToken(Approval{RunID: "run-1", Scope: []Scope{ScopeCommit}}, []byte("key-a"), time.Hour)
	require.NoError(t, err)

	_, err = DecodeToken(token, []byte("key-b"))
	assert.Error(t, err, "expected signature verification with the wrong key to fail")
}

func TestTokenRejectsExpired(t *testing.T) {
	key := []byte("test-signing-key")
	past := time.Now().Add(-2 * time.Hour)
	token, err := EncodeToken(Approval{RunID: "run-1", ApprovedAt: past, Scope: []Scope{ScopeCommit}}, key, time.Hour)
	require.NoError(t, err)

	_, err = DecodeToken(token, key)
	assert.Error(t, err, "expected an expired token to be rejected")
}
