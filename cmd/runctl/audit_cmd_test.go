package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runforge/corectl/pkg/chainaudit"
)

func writeEntriesFile(t *testing.T, entries []chainaudit.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entries.json")
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func honestEntries(t *testing.T) []chainaudit.Entry {
	t.Helper()
	c := chainaudit.NewChain()
	for i := 0; i < 3; i++ {
		_, err := c.Append("t1", "sha256", map[string]any{"n": i})
		require.NoError(t, err)
	}
	return c.Entries("t1")
}

func TestAuditVerifyExitsZeroOnValidChain(t *testing.T) {
	path := writeEntriesFile(t, honestEntries(t))
	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "audit", "verify", "--tenant", "t1", "--entries", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
}

func TestAuditVerifyExitsOneOnTamperedChain(t *testing.T) {
	entries := honestEntries(t)
	entries[1].ContentHash = "sha256:tampered"
	path := writeEntriesFile(t, entries)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "audit", "verify", "--tenant", "t1", "--entries", path, "--json"}, &stdout, &stderr)
	require.Equal(t, 1, code, "tampered chain must exit 1")

	var report chainaudit.VerificationReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.False(t, report.Valid)
}

func TestAuditVerifyMissingFlagsExitsTwo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "audit", "verify"}, &stdout, &stderr)
	assert.Equal(t, 2, code, "missing required flags must exit 2")
}

func TestAuditIsValidPrintsBoolean(t *testing.T) {
	path := writeEntriesFile(t, honestEntries(t))
	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "audit", "is-valid", "--tenant", "t1", "--entries", path}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Equal(t, "true\n", stdout.String())
}

func TestAuditHealthSummary(t *testing.T) {
	path := writeEntriesFile(t, honestEntries(t))
	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "audit", "health", "--tenant", "t1", "--entries", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.NotEmpty(t, stdout.String())
}

func TestUnknownCommandExitsTwo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"runctl", "bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}
