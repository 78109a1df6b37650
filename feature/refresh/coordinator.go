package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trophy-manager/feature/achievements/models"
	"trophy-manager/feature/achievements/provider"
	"trophy-manager/feature/achievements/reconcile"
	"trophy-manager/feature/achievements/store"
	"trophy-manager/feature/iconcache"
	"trophy-manager/feature/library"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrAuthValidation indicates the authentication precondition failed; the
// batch aborted before any target executed.
var ErrAuthValidation = errors.New("authentication validation failed")

// ErrBatchFailed indicates every target in a non-empty batch failed.
var ErrBatchFailed = errors.New("refresh batch failed for all targets")

// Params configures a Coordinator.
type Params struct {
	// Store is the achievement cache. Nil puts the coordinator in degraded
	// fetch-only mode (cache unavailable).
	Store *store.Store
	// Reconciler merges snapshots. Ignored when Store is nil.
	Reconciler *reconcile.Reconciler
	// Registry resolves provider fetchers.
	Registry *provider.Registry
	// Library is the read-only host library metadata source.
	Library library.Metadata
	// Validate is the authentication precondition, consulted when a request
	// sets RequireAuth. Nil treats validation as passing.
	Validate func(ctx context.Context) error
	// LocalIdentities maps provider key to the local user's external identity
	// id. Providers missing from the map use "local".
	LocalIdentities map[string]string
	// Mirror, when set, mirrors achievement icons after successful merges.
	Mirror *iconcache.Mirror
	// Workers bounds concurrent provider calls in flight. Zero defaults to 4.
	Workers int
	// QuickCount is the default quick/recent target count. Zero defaults to 10.
	QuickCount int
	// Sequential forces per-provider sequential execution for every batch.
	Sequential bool
	// Logger is required.
	Logger *zap.Logger
}

// Coordinator resolves refresh requests into concrete targets and drives one
// reconcile pass per target under the configured execution policy.
type Coordinator struct {
	params Params
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(params Params) *Coordinator {
	if params.Workers <= 0 {
		params.Workers = 4
	}
	if params.QuickCount <= 0 {
		params.QuickCount = 10
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &Coordinator{params: params}
}

// Run resolves and executes one refresh request. The underlying batch
// executes at most once regardless of which resolution branch fired or
// whether execution was deferred to a foreground callback.
func (c *Coordinator) Run(ctx context.Context, req Request) (*BatchResult, error) {
	// Hard precondition: nothing is touched if validation fails.
	if req.RequireAuth && c.params.Validate != nil {
		if err := c.params.Validate(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthValidation, err)
		}
	}

	targets, err := c.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		BatchID:          uuid.NewString(),
		Total:            len(targets),
		CacheUnavailable: c.params.Store == nil,
	}

	var once sync.Once
	run := func() error {
		var runErr error
		once.Do(func() {
			runErr = c.executeBatch(ctx, req, targets, result)
		})
		return runErr
	}

	if req.Foreground != nil {
		err = req.Foreground(run)
	} else {
		err = run()
	}
	if err != nil {
		return result, err
	}

	if result.Total > 0 && result.Succeeded == 0 {
		return result, ErrBatchFailed
	}
	return result, nil
}

// Resolve maps a request to its concrete target set. The branches are walked
// in priority order and exactly one executes.
func (c *Coordinator) Resolve(ctx context.Context, req Request) ([]Target, error) {
	switch {
	case len(req.GameIDs) > 0:
		return c.resolveIDs(ctx, dedupe(req.GameIDs), nil)
	case req.GameID != "":
		return c.resolveIDs(ctx, []string{req.GameID}, nil)
	case req.Custom != nil:
		return c.resolveCustom(ctx, req)
	case req.Mode != ModeUnspecified && req.Mode != ModeOther:
		return c.resolveMode(ctx, req.Mode, req)
	case req.ModeKey != "" || req.Mode == ModeOther:
		if mode, ok := ParseMode(req.ModeKey); ok {
			return c.resolveMode(ctx, mode, req)
		}
		return c.resolveMode(ctx, ModeQuick, req)
	default:
		return c.resolveMode(ctx, ModeQuick, req)
	}
}

// cachedKeys lists the store's cached pairs, or nothing in degraded mode.
func (c *Coordinator) cachedKeys(ctx context.Context) ([]store.TitleKey, error) {
	if c.params.Store == nil {
		return nil, nil
	}
	return c.params.Store.ListCachedTitleKeys(ctx)
}

// resolveIDs matches explicit game ids against cached pairs by provider game
// id or library entry id. Ids with no cached pair become first-fetch targets
// for each allowed provider.
func (c *Coordinator) resolveIDs(ctx context.Context, ids []string, providerKeys []string) ([]Target, error) {
	keys, err := c.cachedKeys(ctx)
	if err != nil {
		return nil, err
	}

	allowed := c.allowedProviders(providerKeys)
	var targets []Target
	for _, id := range ids {
		matched := false
		for _, key := range keys {
			if !allowed[key.Provider] {
				continue
			}
			if key.ProviderGameID == id || (key.LibraryEntryID != nil && *key.LibraryEntryID == id) {
				targets = append(targets, targetFromKey(key))
				matched = true
			}
		}
		if !matched {
			// Never fetched before: one target per allowed provider.
			for _, providerKey := range c.params.Registry.Keys() {
				if !allowed[providerKey] {
					continue
				}
				targets = append(targets, Target{Provider: providerKey, ProviderGameID: id})
			}
		}
	}
	return targets, nil
}

func (c *Coordinator) resolveCustom(ctx context.Context, req Request) ([]Target, error) {
	custom := req.Custom
	if custom.Scope == ScopeExplicit {
		targets, err := c.resolveIDs(ctx, dedupe(custom.GameIDs), custom.ProviderKeys)
		if err != nil {
			return nil, err
		}
		if custom.RespectExclusions {
			targets = c.filterExcluded(ctx, targets)
		}
		return targets, nil
	}

	keys, err := c.cachedKeys(ctx)
	if err != nil {
		return nil, err
	}
	allowed := c.allowedProviders(custom.ProviderKeys)
	var targets []Target
	for _, key := range keys {
		if !allowed[key.Provider] {
			continue
		}
		if custom.RespectExclusions && key.ExcludedByUser {
			continue
		}
		targets = append(targets, targetFromKey(key))
	}
	return targets, nil
}

func (c *Coordinator) resolveMode(ctx context.Context, mode Mode, req Request) ([]Target, error) {
	switch mode {
	case ModeSelected:
		return c.resolveIDs(ctx, dedupe(req.SelectionIDs), nil)
	case ModeSingle:
		if req.GameID == "" {
			return nil, nil
		}
		return c.resolveIDs(ctx, []string{req.GameID}, nil)
	}

	keys, err := c.cachedKeys(ctx)
	if err != nil {
		return nil, err
	}

	var targets []Target
	switch mode {
	case ModeFull:
		for _, key := range keys {
			targets = append(targets, targetFromKey(key))
		}
	case ModeInstalled:
		for _, key := range keys {
			if entry, ok := c.libraryEntry(key); ok && entry.Installed {
				targets = append(targets, targetFromKey(key))
			}
		}
	case ModeFavorites:
		for _, key := range keys {
			if entry, ok := c.libraryEntry(key); ok && entry.Favorite {
				targets = append(targets, targetFromKey(key))
			}
		}
	case ModeMissing:
		for _, key := range keys {
			if key.HasAchievements && key.TotalCount == 0 {
				targets = append(targets, targetFromKey(key))
			}
		}
	default: // ModeQuick
		targets = c.resolveQuick(keys, req)
	}
	return targets, nil
}

// resolveQuick picks the N most recently played titles. The known-empty skip
// is an optimization only: titles never scanned always pass through because
// has_achievements defaults to true.
func (c *Coordinator) resolveQuick(keys []store.TitleKey, req Request) []Target {
	count := req.QuickCount
	if count <= 0 {
		count = c.params.QuickCount
	}

	type candidate struct {
		key        store.TitleKey
		lastPlayed *time.Time
	}
	var candidates []candidate
	for _, key := range keys {
		if req.SkipKnownEmpty && (!key.HasAchievements || key.ExcludedByUser) {
			continue
		}
		var lastPlayed *time.Time
		if entry, ok := c.libraryEntry(key); ok {
			lastPlayed = entry.LastPlayed
		}
		if lastPlayed == nil && !req.IncludeUnplayed {
			continue
		}
		candidates = append(candidates, candidate{key: key, lastPlayed: lastPlayed})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].lastPlayed, candidates[j].lastPlayed
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return candidates[i].key.ProviderGameID < candidates[j].key.ProviderGameID
		}
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}
	targets := make([]Target, 0, len(candidates))
	for _, cand := range candidates {
		targets = append(targets, targetFromKey(cand.key))
	}
	return targets
}

func (c *Coordinator) filterExcluded(ctx context.Context, targets []Target) []Target {
	keys, err := c.cachedKeys(ctx)
	if err != nil {
		return targets
	}
	excluded := make(map[string]bool)
	for _, key := range keys {
		if key.ExcludedByUser {
			excluded[key.Provider+"|"+key.ProviderGameID] = true
		}
	}
	var kept []Target
	for _, target := range targets {
		if !excluded[target.Provider+"|"+target.ProviderGameID] {
			kept = append(kept, target)
		}
	}
	return kept
}

func (c *Coordinator) allowedProviders(keys []string) map[string]bool {
	allowed := make(map[string]bool)
	if len(keys) == 0 {
		for _, key := range c.params.Registry.Keys() {
			allowed[key] = true
		}
		return allowed
	}
	for _, key := range keys {
		allowed[key] = true
	}
	return allowed
}

func (c *Coordinator) libraryEntry(key store.TitleKey) (library.Entry, bool) {
	if c.params.Library == nil {
		return library.Entry{}, false
	}
	lookup := key.ProviderGameID
	if key.LibraryEntryID != nil {
		lookup = *key.LibraryEntryID
	}
	return c.params.Library.Entry(lookup)
}

func targetFromKey(key store.TitleKey) Target {
	return Target{
		Provider:       key.Provider,
		ProviderGameID: key.ProviderGameID,
		IdentityID:     key.IdentityID,
		TitleID:        key.TitleID,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// executeBatch fans targets out over a bounded worker pool. Targets for a
// sequential provider run one at a time; everything else shares the pool.
// Cancellation is checked between targets, never mid-reconcile.
func (c *Coordinator) executeBatch(ctx context.Context, req Request, targets []Target, result *BatchResult) error {
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if len(targets) == 0 {
		return nil
	}

	sequential := c.params.Sequential
	if req.Custom != nil && req.Custom.Concurrent != nil {
		sequential = !*req.Custom.Concurrent
	}

	byProvider := make(map[string][]Target)
	for _, target := range targets {
		byProvider[target.Provider] = append(byProvider[target.Provider], target)
	}

	var mu sync.Mutex
	recordFailure := func(target Target, err error) {
		mu.Lock()
		result.Failed = append(result.Failed, TargetError{Target: target, Err: err})
		mu.Unlock()
	}
	recordSuccess := func() {
		mu.Lock()
		result.Succeeded++
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(c.params.Workers))
	group, groupCtx := errgroup.WithContext(ctx)

	for providerKey, providerTargets := range byProvider {
		fetcher, err := c.params.Registry.Get(providerKey)
		if err != nil {
			for _, target := range providerTargets {
				recordFailure(target, err)
			}
			continue
		}

		providerTargets := providerTargets
		if sequential || fetcher.Sequential() {
			group.Go(func() error {
				for _, target := range providerTargets {
					if groupCtx.Err() != nil {
						return groupCtx.Err()
					}
					if err := sem.Acquire(groupCtx, 1); err != nil {
						return err
					}
					c.runTarget(groupCtx, req, fetcher, target, recordSuccess, recordFailure)
					sem.Release(1)
				}
				return nil
			})
			continue
		}

		for _, target := range providerTargets {
			target := target
			group.Go(func() error {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				if err := sem.Acquire(groupCtx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				c.runTarget(groupCtx, req, fetcher, target, recordSuccess, recordFailure)
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// runTarget fetches and merges one target. Failures are isolated: the cached
// entry stays untouched and the batch continues.
func (c *Coordinator) runTarget(
	ctx context.Context,
	req Request,
	fetcher provider.Fetcher,
	target Target,
	onSuccess func(),
	onFailure func(Target, error),
) {
	l := c.params.Logger.With(
		zap.String("provider", target.Provider),
		zap.String("game_id", target.ProviderGameID),
	)

	identityExternalID := c.params.LocalIdentities[target.Provider]
	if identityExternalID == "" {
		identityExternalID = "local"
	}

	snapshot, err := fetcher.Fetch(ctx, target.ProviderGameID, identityExternalID)
	if err != nil {
		l.Warn("provider fetch failed", zap.Error(err))
		onFailure(target, err)
		return
	}
	if snapshot == nil {
		// Malformed payload: no-op for this target, logged, batch continues.
		l.Warn("provider returned malformed payload")
		onFailure(target, errors.New("malformed provider payload"))
		return
	}

	if c.params.Store == nil || c.params.Reconciler == nil {
		// Degraded fetch-only mode: nothing to merge into.
		l.Debug("cache unavailable, fetched without merge")
		onSuccess()
		return
	}

	identity := &models.UserIdentity{
		Provider:    target.Provider,
		ExternalID:  identityExternalID,
		IsLocalUser: true,
	}
	if err := c.params.Store.UpsertIdentity(ctx, identity); err != nil {
		onFailure(target, err)
		return
	}

	title := &models.GameTitle{
		Provider:       target.Provider,
		ProviderGameID: target.ProviderGameID,
	}
	if c.params.Library != nil {
		if entry, ok := c.params.Library.Entry(target.ProviderGameID); ok {
			title.DisplayName = entry.Name
			id := entry.GameID
			title.LibraryEntryID = &id
			title.LibrarySource = c.params.Library.Source()
		}
	}
	if err := c.params.Store.UpsertTitle(ctx, title); err != nil {
		onFailure(target, err)
		return
	}

	mergeResult, err := c.params.Reconciler.Reconcile(ctx, identity, title, *snapshot, reconcile.Options{
		HardOverwrite: req.HardOverwrite,
	})
	if err != nil {
		onFailure(target, err)
		return
	}

	l.Info("target reconciled",
		zap.Int("created", mergeResult.Created),
		zap.Int("updated", mergeResult.Updated),
		zap.Int("stale_removed", mergeResult.StaleRemoved),
		zap.Int("unlocked", mergeResult.UnlockedCount),
		zap.Int("total", mergeResult.TotalCount),
	)

	if c.params.Mirror != nil {
		// Best effort: icon mirroring never fails a target.
		if _, err := c.params.Mirror.MirrorDefinitions(ctx, target.Provider, snapshot.Definitions); err != nil {
			l.Warn("icon mirror failed", zap.Error(err))
		}
	}

	onSuccess()
}
