// Package auditlog is the run control plane's per-run audit log (B): an
// append-only newline-delimited-JSON stream written into each run's
// bundle. Grounded on this codebase's pkg/audit.Logger (principal
// extraction, JSON entries) adapted from a process-wide log to a per-run
// artifact stream living in the bundle store.
package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/runforge/corectl/pkg/bundle"
)

// Entry is one audit event, per §3.3.
type Entry struct {
	RunID     string         `json:"runId"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	ActorID   string         `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log appends entries to a run's audit.log artifact. Appends within a run
// are totally ordered because each Append fully reads-then-rewrites the
// artifact while the run lock (pkg/reliability) guarantees at most one
// mutator per run; Log itself does no additional locking.
type Log struct {
	store *bundle.Store
}

// New wraps a bundle store.
func New(store *bundle.Store) *Log {
	return &Log{store: store}
}

// Append writes one newline-JSON entry to runID's audit.log, preserving
// read order = append order.
func (l *Log) Append(ctx context.Context, runID, actor, actorID, action string, details map[string]any) (*Entry, error) {
	entry := &Entry{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		ActorID:   actorID,
		Action:    action,
		Details:   details,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("auditlog: marshal entry: %w", err)
	}
	line = append(line, '\n')

	existing, err := l.store.Read(ctx, runID, bundle.ArtifactAudit)
	if err != nil {
		if err != bundle.ErrNotFound {
			return nil, fmt.Errorf("auditlog: read existing log: %w", err)
		}
		existing = nil
	}
	if err := l.store.Write(ctx, runID, bundle.ArtifactAudit, append(existing, line...)); err != nil {
		return nil, fmt.Errorf("auditlog: append: %w", err)
	}
	return entry, nil
}

// List reads and decodes every entry in append order.
func (l *Log) List(ctx context.Context, runID string) ([]Entry, error) {
	data, err := l.store.Read(ctx, runID, bundle.ArtifactAudit)
	if err != nil {
		if err == bundle.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("auditlog: read: %w", err)
	}
	return decodeLines(data)
}

func decodeLines(data []byte) ([]Entry, error) {
	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("auditlog: decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
