package refresh

import "time"

// Scope controls which game ids a custom request covers.
type Scope int

const (
	// ScopeAll targets every cached title for the chosen providers.
	ScopeAll Scope = iota
	// ScopeExplicit targets only the custom include-list.
	ScopeExplicit
)

// CustomOptions is the multi-provider escape hatch: explicit provider keys,
// an All/Explicit scope, and overrides for exclusion handling and
// concurrency.
type CustomOptions struct {
	// ProviderKeys limits the batch to these providers. Empty means all
	// enabled providers.
	ProviderKeys []string
	// Scope selects between all cached titles and the GameIDs include-list.
	Scope Scope
	// GameIDs is the include-list for ScopeExplicit.
	GameIDs []string
	// RespectExclusions skips titles the user excluded from scanning.
	RespectExclusions bool
	// Concurrent overrides whether providers run concurrently. Nil keeps the
	// coordinator default.
	Concurrent *bool
}

// Request describes one refresh. Target resolution walks the fields in
// priority order: GameIDs, GameID, Custom, Mode, ModeKey, then the
// quick/recent default. Exactly one branch resolves per request.
type Request struct {
	// GameIDs is an explicit set of game identifiers ("rescan just these").
	GameIDs []string
	// GameID is a single designated game (detail-view rescan).
	GameID string
	// Custom carries multi-provider options.
	Custom *CustomOptions
	// Mode is a typed scan mode.
	Mode Mode
	// ModeKey is a raw scan-mode key, used when Mode is ModeOther or unset.
	ModeKey string
	// SelectionIDs backs ModeSelected.
	SelectionIDs []string

	// QuickCount caps the quick/recent target count. Zero uses the
	// coordinator default.
	QuickCount int
	// IncludeUnplayed lets quick/recent pick titles with no play time.
	IncludeUnplayed bool
	// SkipKnownEmpty skips titles already known to have no achievements or
	// be user-excluded. Correctness-neutral: titles never scanned always
	// pass through.
	SkipKnownEmpty bool

	// RequireAuth demands authentication validation before any target is
	// touched. Validation failure aborts with zero reconciler invocations.
	RequireAuth bool
	// Foreground, when set, receives the batch closure to run under visible
	// progress instead of executing immediately.
	Foreground func(run func() error) error
	// HardOverwrite propagates to every reconcile pass (re-import flows).
	HardOverwrite bool
}

// Target is one (provider, game, identity) unit to fetch and reconcile.
type Target struct {
	Provider       string
	ProviderGameID string
	IdentityID     uint
	TitleID        uint
}

// TargetError records a per-target failure. Failures never propagate past
// the single target.
type TargetError struct {
	Target Target
	Err    error
}

// BatchResult summarizes one executed refresh batch.
type BatchResult struct {
	// BatchID uniquely identifies the batch in logs.
	BatchID string
	// Total is the number of resolved targets.
	Total int
	// Succeeded counts targets whose fetch and merge completed.
	Succeeded int
	// Failed holds per-target failures.
	Failed []TargetError
	// CacheUnavailable reports degraded fetch-only operation: snapshots were
	// fetched but not merged because the cache store could not be opened.
	CacheUnavailable bool
	// Duration is the wall time of the execution phase.
	Duration time.Duration
}
