package auditlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runforge/corectl/pkg/bundle"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	backend, err := bundle.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return New(bundle.New(backend))
}

func TestAppendOrderPreserved(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t)

	actions := []string{"run_created", "state_transition", "state_transition"}
	for _, a := range actions {
		_, err := log.Append(ctx, "run-1", "system", "", a, nil)
		require.NoError(t, err)
	}

	entries, err := log.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, len(actions))
	for i, a := range actions {
		assert.Equal(t, a, entries[i].Action, "entry %d", i)
	}
}

func TestListEmptyLogReturnsNoEntries(t *testing.T) {
	entries, err := newTestLog(t).List(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendCarriesDetails(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t)
	_, err := log.Append(ctx, "run-1", "dev@acme.com", "user-1", "run_created", map[string]any{"repo": "acme/project"})
	require.NoError(t, err)
	entries, _ := log.List(ctx, "run-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "acme/project", entries[0].Details["repo"])
}
