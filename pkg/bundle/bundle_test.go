package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return New(backend)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Write(ctx, "run-1", ArtifactPlan, []byte("do the thing")))
	got, err := s.Read(ctx, "run-1", ArtifactPlan)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", string(got))
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read(context.Background(), "no-such-run", ArtifactRun)
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestHashIsStableOverExactBytes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Write(ctx, "run-1", ArtifactPatch, []byte("diff --git a b")))

	h1, err := s.Hash(ctx, "run-1", ArtifactPatch)
	require.NoError(t, err)
	h2 := HashBytes([]byte("diff --git a b"))
	assert.Equal(t, h2, h1)
	assert.Len(t, h1, len("sha256:")+64, "unexpected hash format: %s", h1)
}

func TestWriteOverwriteReplacesArtifact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Write(ctx, "run-1", ArtifactRun, []byte(`{"state":"queued"}`)))
	require.NoError(t, s.Write(ctx, "run-1", ArtifactRun, []byte(`{"state":"triaged"}`)))
	got, err := s.Read(ctx, "run-1", ArtifactRun)
	require.NoError(t, err)
	assert.Equal(t, `{"state":"triaged"}`, string(got))
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Write(ctx, "run-a", ArtifactRun, []byte("{}")))
	require.NoError(t, s.Write(ctx, "run-b", ArtifactRun, []byte("{}")))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "got %v", runs)
}

func TestListArtifactsExcludesTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Write(ctx, "run-1", ArtifactRun, []byte("{}")))
	require.NoError(t, s.Write(ctx, "run-1", ArtifactTriage, []byte("{}")))
	require.NoError(t, s.Write(ctx, "run-1", ArtifactRun+".tmp", []byte("partial")))

	names, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, names, 2, "got %v", names)
}
