package runindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// runJSON is the minimal projection of run.json this package needs to
// rebuild an index entry, avoiding an import of pkg/run (which itself
// depends on runindex.Index).
type runJSON struct {
	RunID     string    `json:"runId"`
	TenantID  string    `json:"tenantId"`
	Repo      struct {
		FullName string `json:"fullName"`
	} `json:"repo"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SyncFromBundles rebuilds idx from every run.json the bundle lister can
// see, per §4.4's "derivable from bundles" guarantee. Existing entries for
// runs no longer present in the bundle store are left untouched; callers
// wanting a from-scratch rebuild should Clear a MemoryIndex first.
func SyncFromBundles(ctx context.Context, idx Index, bundles BundleLister) (int, error) {
	runIDs, err := bundles.ListRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("runindex: list runs: %w", err)
	}

	synced := 0
	for _, runID := range runIDs {
		data, err := bundles.Read(ctx, runID, "run.json")
		if err != nil {
			continue // a run missing run.json is not indexable; skip rather than fail the whole sync
		}
		var r runJSON
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		if err := idx.Put(ctx, runID, Entry{
			RunID: runID, TenantID: r.TenantID, Repo: r.Repo.FullName,
			State: r.State, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		}); err != nil {
			return synced, fmt.Errorf("runindex: put during sync: %w", err)
		}
		synced++
	}
	return synced, nil
}
