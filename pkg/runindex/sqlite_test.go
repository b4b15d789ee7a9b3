package runindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteIndexPutGetListDelete(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLiteIndex(ctx, ":memory:")
	require.NoError(t, err)
	defer idx.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, idx.Put(ctx, "run-1", Entry{
		RunID: "run-1", TenantID: "t1", Repo: "acme/project", State: "queued",
		CreatedAt: now, UpdatedAt: now,
	}))

	got, ok, err := idx.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acme/project", got.Repo)

	entries, err := idx.List(ctx, ListFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].RunID)

	require.NoError(t, idx.Delete(ctx, "run-1"))
	_, ok, err = idx.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteIndexUpsertOnConflict(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLiteIndex(ctx, ":memory:")
	require.NoError(t, err)
	defer idx.Close()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, idx.Put(ctx, "run-1", Entry{RunID: "run-1", TenantID: "t1", State: "queued", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, idx.Put(ctx, "run-1", Entry{RunID: "run-1", TenantID: "t1", State: "done", CreatedAt: base, UpdatedAt: base.Add(time.Minute)}))

	got, ok, err := idx.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", got.State)
}
