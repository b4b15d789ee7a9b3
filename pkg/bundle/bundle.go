// Package bundle is the Artifact Store (A): a content-hashed, per-run
// directory of named artifacts (run.json, triage.json, plan.md,
// patch.diff, review.json, audit.log). Grounded on this codebase's
// pkg/artifacts content-addressed store, generalized from a flat
// hash-keyed blob namespace to named, per-run artifacts, and from a single
// filesystem backend to a pluggable Backend interface.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read/Hash when the run or artifact does not exist.
var ErrNotFound = errors.New("bundle: not found")

// Names of the standard artifacts §6.1 lists.
const (
	ArtifactRun    = "run.json"
	ArtifactTriage = "triage.json"
	ArtifactPlan   = "plan.md"
	ArtifactPatch  = "patch.diff"
	ArtifactReview = "review.json"
	ArtifactAudit  = "audit.log"
)

// Backend is the storage contract for the artifact store (§4.1).
// Implementations must make Write atomic (temp-then-rename) and must
// distinguish "not present" from "empty" on Read.
type Backend interface {
	EnsureRun(ctx context.Context, runID string) error
	Write(ctx context.Context, runID, name string, data []byte) error
	Read(ctx context.Context, runID, name string) ([]byte, error)
	Exists(ctx context.Context, runID, name string) (bool, error)
	List(ctx context.Context, runID string) ([]string, error)
	Delete(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
}

// Store wraps a Backend with the hashing contract (§3.2, §4.1: hashes are
// sha256:<lowercase-hex> over the exact bytes).
type Store struct {
	backend Backend
}

// New wraps a Backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) EnsureRun(ctx context.Context, runID string) error {
	return s.backend.EnsureRun(ctx, runID)
}

func (s *Store) Write(ctx context.Context, runID, name string, data []byte) error {
	if err := s.backend.EnsureRun(ctx, runID); err != nil {
		return fmt.Errorf("bundle: ensure run %s: %w", runID, err)
	}
	if err := s.backend.Write(ctx, runID, name, data); err != nil {
		return fmt.Errorf("bundle: write %s/%s: %w", runID, name, err)
	}
	return nil
}

// WriteJSON is a convenience for structured artifacts (run.json, triage.json,
// review.json).
func (s *Store) WriteJSON(ctx context.Context, runID, name string, marshal func() ([]byte, error)) error {
	data, err := marshal()
	if err != nil {
		return fmt.Errorf("bundle: marshal %s/%s: %w", runID, name, err)
	}
	return s.Write(ctx, runID, name, data)
}

// Read returns the backend's ErrNotFound, unwrapped, if the run or artifact
// is absent, distinct from a present-but-empty artifact.
func (s *Store) Read(ctx context.Context, runID, name string) ([]byte, error) {
	data, err := s.backend.Read(ctx, runID, name)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Exists(ctx context.Context, runID, name string) (bool, error) {
	return s.backend.Exists(ctx, runID, name)
}

func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	return s.backend.List(ctx, runID)
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	return s.backend.Delete(ctx, runID)
}

func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	return s.backend.ListRuns(ctx)
}

// Hash returns the sha256:<hex> digest of the named artifact's exact bytes.
func (s *Store) Hash(ctx context.Context, runID, name string) (string, error) {
	data, err := s.Read(ctx, runID, name)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes computes the sha256:<hex> digest the spec requires everywhere
// content is hashed (artifacts, patches, approval records).
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
