package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTierTable = `
tiers:
  - plan: free
    schemaVersion: "1.0.0"
    limits:
      runsPerMonth: 100
      repos: 3
      members: 2
  - plan: pro
    schemaVersion: "1.1.0"
    limits:
      runsPerMonth: 10000
      repos: 50
      members: 25
`

func TestLoadTierTableYAMLBuildsCatalog(t *testing.T) {
	catalog, err := LoadTierTableYAML([]byte(validTierTable))
	require.NoError(t, err)

	free, ok := catalog.Tier("free")
	require.True(t, ok)
	assert.Equal(t, int64(100), free.Limits.RunsPerMonth)
	assert.Equal(t, "1.0.0", free.SchemaVersion.String())

	pro, ok := catalog.Tier("pro")
	require.True(t, ok)
	assert.Equal(t, int64(50), pro.Limits.Repos)
}

func TestLoadTierTableYAMLRejectsMissingLimits(t *testing.T) {
	const missingLimits = `
tiers:
  - plan: free
    schemaVersion: "1.0.0"
`
	_, err := LoadTierTableYAML([]byte(missingLimits))
	assert.Error(t, err, "expected a tier missing its limits object to fail schema validation")
}

func TestLoadTierTableYAMLRejectsMalformedVersion(t *testing.T) {
	const badVersion = `
tiers:
  - plan: free
    schemaVersion: "not-a-version"
    limits:
      runsPerMonth: 100
      repos: 3
      members: 2
`
	_, err := LoadTierTableYAML([]byte(badVersion))
	assert.Error(t, err, "expected an unparseable semver schemaVersion to fail")
}

func TestLoadTierTableYAMLUsableWithChangePlan(t *testing.T) {
	catalog, err := LoadTierTableYAML([]byte(validTierTable))
	require.NoError(t, err)

	ctx := context.Background()
	store := NewMemoryStore()
	mgr := New(store, catalog, nil)

	_, err = mgr.Create(ctx, "t1", "free", nil)
	require.NoError(t, err)

	result, err := mgr.ChangePlan(ctx, "t1", "pro", Usage{RunsThisMonth: 500})
	require.NoError(t, err)
	assert.True(t, result.Allowed, "%+v", result.Reasons)
}
