package reconcile

import "time"

// IncomingDefinition is one achievement definition as normalized from a
// provider payload. APIName is the provider-scoped stable key.
type IncomingDefinition struct {
	APIName             string
	DisplayName         string
	Description         string
	UnlockedIconRef     string
	LockedIconRef       string
	Hidden              bool
	GlobalUnlockPercent float64
	ProgressMax         int
	Points              int
	Category            string
}

// IncomingUnlock is the per-achievement unlock state from a provider payload.
// Unlocked is a tagged optional: some providers report only a progress
// fraction, in which case unlocked is synthesized from Num >= Denom.
type IncomingUnlock struct {
	APIName    string
	Unlocked   *bool
	UnlockedAt *time.Time
	Num        *int
	Denom      *int
}

// Snapshot is the normalized (definitions, unlocks) shape every provider
// adapter maps its native payload into.
//
// Complete marks a fetch that finished without error or truncation. Stale
// pruning, including the empty-set-deletes-all policy, only runs on a
// complete snapshot, so a transient empty response cannot wipe a title's
// cached definitions.
type Snapshot struct {
	Definitions []IncomingDefinition
	Unlocks     []IncomingUnlock
	Complete    bool
}

// Options controls a single reconcile pass.
type Options struct {
	// HardOverwrite bypasses the unlock ratchet, allowing an unlocked record
	// to revert to locked. Used only by cache-clear and re-import flows.
	HardOverwrite bool
}

// Result summarizes what one reconcile pass changed.
type Result struct {
	Created      int
	Updated      int
	StaleRemoved int

	// Aggregates after the merge, mirrored from the progress row.
	UnlockedCount   int
	TotalCount      int
	HasAchievements bool
}
