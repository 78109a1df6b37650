package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"trophy-manager/feature/achievements/reconcile"
)

// DirFetcher serves snapshots from exported payload files on disk. Each
// provider gets a subdirectory under the root and each title one JSON file
// named "<gameID>.json" in the RawPayload shape. Exports are complete by
// definition, so snapshots are marked Complete unless the file says
// otherwise.
type DirFetcher struct {
	key  string
	root string
}

// NewDirFetcher creates a fetcher for one provider subdirectory.
func NewDirFetcher(key, root string) *DirFetcher {
	return &DirFetcher{key: key, root: root}
}

func (f *DirFetcher) Key() string { return f.key }

// Sequential is false: reading local files has no backend to protect.
func (f *DirFetcher) Sequential() bool { return false }

// filePayload is the on-disk shape. Complete defaults to true when absent.
type filePayload struct {
	Definitions []map[string]any `json:"definitions"`
	Unlocks     []map[string]any `json:"unlocks"`
	Complete    *bool            `json:"complete"`
}

func (f *DirFetcher) Fetch(ctx context.Context, titleExternalID, identityExternalID string) (*reconcile.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.root, f.key, titleExternalID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed export: the coordinator treats a nil snapshot as a
		// logged no-op rather than a transient failure.
		return nil, nil
	}

	complete := true
	if payload.Complete != nil {
		complete = *payload.Complete
	}
	snapshot := FromRaw(RawPayload{
		Definitions: payload.Definitions,
		Unlocks:     payload.Unlocks,
		Complete:    complete,
	})
	return &snapshot, nil
}

// DiscoverDirFetchers registers one DirFetcher per subdirectory of root.
// Missing or unreadable roots register nothing.
func DiscoverDirFetchers(registry *Registry, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read provider snapshot root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		registry.Register(NewDirFetcher(entry.Name(), root))
	}
	return nil
}
