package runindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOrderedByUpdatedAtDescending(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, idx.Put(ctx, "run-old", Entry{RunID: "run-old", TenantID: "t1", UpdatedAt: base}))
	require.NoError(t, idx.Put(ctx, "run-new", Entry{RunID: "run-new", TenantID: "t1", UpdatedAt: base.Add(time.Minute)}))

	entries, err := idx.List(ctx, ListFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-new", entries[0].RunID, "expected run-new first, got %+v", entries)
}

func TestListFiltersByState(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, "r1", Entry{RunID: "r1", TenantID: "t1", State: "done"}))
	require.NoError(t, idx.Put(ctx, "r2", Entry{RunID: "r2", TenantID: "t1", State: "queued"}))

	entries, err := idx.List(ctx, ListFilter{TenantID: "t1", State: "done"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].RunID, "expected only r1, got %+v", entries)
}

func TestDeleteRemovesEntry(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Put(ctx, "r1", Entry{RunID: "r1"}))
	require.NoError(t, idx.Delete(ctx, "r1"))
	_, ok, _ := idx.Get(ctx, "r1")
	assert.False(t, ok, "expected entry to be gone")
}
