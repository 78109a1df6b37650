package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trophy-manager/feature/achievements/models"
	"trophy-manager/feature/achievements/provider"
	"trophy-manager/feature/achievements/reconcile"
	"trophy-manager/feature/achievements/store"
	"trophy-manager/feature/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeFetcher records fetch calls and serves a canned snapshot.
type fakeFetcher struct {
	key        string
	sequential bool
	snapshot   *reconcile.Snapshot
	err        error

	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeFetcher) Key() string      { return f.key }
func (f *fakeFetcher) Sequential() bool { return f.sequential }

func (f *fakeFetcher) Fetch(ctx context.Context, titleExternalID, identityExternalID string) (*reconcile.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, titleExternalID)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot == nil {
		return &reconcile.Snapshot{Complete: true}, nil
	}
	return f.snapshot, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRegistry(fetchers ...provider.Fetcher) *provider.Registry {
	registry := provider.NewRegistry(nil)
	for _, f := range fetchers {
		registry.Register(f)
	}
	return registry
}

func setupCoordStore(t *testing.T, dbName string) *store.Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	require.NoError(t, store.Migrate(db))
	return store.New(db)
}

// seedPair caches one (identity, title) pair and returns the title id.
func seedPair(t *testing.T, s *store.Store, providerKey, gameID string, mutate func(*models.GameProgress)) uint {
	ctx := context.Background()
	title := &models.GameTitle{Provider: providerKey, ProviderGameID: gameID}
	require.NoError(t, s.UpsertTitle(ctx, title))
	identity := &models.UserIdentity{Provider: providerKey, ExternalID: "local"}
	require.NoError(t, s.UpsertIdentity(ctx, identity))

	progress, err := store.GetOrCreateProgress(s.DB(), identity.ID, title.ID)
	require.NoError(t, err)
	if mutate != nil {
		mutate(progress)
		require.NoError(t, store.SaveProgress(s.DB(), progress))
	}
	return title.ID
}

func TestResolvePriority(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Logger:   zap.NewNop(),
	})
	ctx := context.Background()

	t.Run("ExplicitIDsBeatMode", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{
			GameIDs: []string{"440", "620"},
			GameID:  "730",
			Mode:    ModeFull,
		})
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.Equal(t, "440", targets[0].ProviderGameID)
		assert.Equal(t, "620", targets[1].ProviderGameID)
	})

	t.Run("SingleIDBeatsMode", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{GameID: "730", Mode: ModeFull})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "730", targets[0].ProviderGameID)
	})

	t.Run("DuplicateIDsCollapse", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{GameIDs: []string{"440", "440", ""}})
		require.NoError(t, err)
		assert.Len(t, targets, 1)
	})

	t.Run("UnknownModeKeyFallsBackToQuick", func(t *testing.T) {
		// Degraded coordinator has no cached keys, so quick resolves empty
		// rather than erroring.
		targets, err := c.Resolve(ctx, Request{ModeKey: "bogus-mode"})
		require.NoError(t, err)
		assert.Empty(t, targets)
	})

	t.Run("ModeKeyString", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{
			ModeKey:      "selected",
			SelectionIDs: []string{"111"},
		})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "111", targets[0].ProviderGameID)
	})
}

func TestResolveModesAgainstCache(t *testing.T) {
	s := setupCoordStore(t, "coord_modes")
	now := time.Now()
	older := now.Add(-48 * time.Hour)

	playedID := seedPair(t, s, "steam", "played", func(p *models.GameProgress) { p.TotalCount = 5 })
	_ = seedPair(t, s, "steam", "stale-played", func(p *models.GameProgress) { p.TotalCount = 3 })
	emptyID := seedPair(t, s, "steam", "known-empty", func(p *models.GameProgress) { p.HasAchievements = false })
	missingID := seedPair(t, s, "steam", "never-scanned", nil)

	lib := library.NewStatic(
		library.Entry{GameID: "played", Name: "Played", Installed: true, LastPlayed: &now},
		library.Entry{GameID: "stale-played", Name: "Stale", Favorite: true, LastPlayed: &older},
		library.Entry{GameID: "known-empty", Name: "Empty", LastPlayed: &older},
	)

	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Store:    s,
		Registry: newRegistry(fetcher),
		Library:  lib,
		Logger:   zap.NewNop(),
	})
	ctx := context.Background()

	t.Run("FullTargetsEverything", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeFull})
		require.NoError(t, err)
		assert.Len(t, targets, 4)
	})

	t.Run("InstalledFiltersByLibrary", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeInstalled})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, playedID, targets[0].TitleID)
	})

	t.Run("FavoritesFiltersByLibrary", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeFavorites})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "stale-played", targets[0].ProviderGameID)
	})

	t.Run("MissingTargetsUnscanned", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeMissing})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, missingID, targets[0].TitleID)
	})

	t.Run("QuickOrdersByRecency", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeQuick, QuickCount: 1})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "played", targets[0].ProviderGameID)
	})

	t.Run("QuickSkipsKnownEmpty", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeQuick, QuickCount: 10, SkipKnownEmpty: true})
		require.NoError(t, err)
		for _, target := range targets {
			assert.NotEqual(t, emptyID, target.TitleID)
		}
	})

	t.Run("QuickIncludesKnownEmptyByDefault", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeQuick, QuickCount: 10})
		require.NoError(t, err)
		assert.Len(t, targets, 3, "all played titles, never-scanned has no play time")
	})

	t.Run("QuickIncludeUnplayed", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Mode: ModeQuick, QuickCount: 10, IncludeUnplayed: true})
		require.NoError(t, err)
		assert.Len(t, targets, 4)
	})

	t.Run("CachedIDMatchesPair", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{GameID: "played"})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, playedID, targets[0].TitleID, "cached pairs resolve with their row ids")
	})
}

func TestResolveCustom(t *testing.T) {
	s := setupCoordStore(t, "coord_custom")
	seedPair(t, s, "steam", "440", nil)
	seedPair(t, s, "retro", "9001", nil)
	seedPair(t, s, "steam", "excluded", func(p *models.GameProgress) { p.ExcludedByUser = true })

	c := NewCoordinator(Params{
		Store:    s,
		Registry: newRegistry(&fakeFetcher{key: "steam"}, &fakeFetcher{key: "retro"}),
		Logger:   zap.NewNop(),
	})
	ctx := context.Background()

	t.Run("ScopeAllFiltersProvider", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Custom: &CustomOptions{
			ProviderKeys: []string{"retro"},
		}})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "9001", targets[0].ProviderGameID)
	})

	t.Run("RespectExclusions", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Custom: &CustomOptions{
			ProviderKeys:      []string{"steam"},
			RespectExclusions: true,
		}})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "440", targets[0].ProviderGameID)
	})

	t.Run("ScopeExplicit", func(t *testing.T) {
		targets, err := c.Resolve(ctx, Request{Custom: &CustomOptions{
			Scope:   ScopeExplicit,
			GameIDs: []string{"440"},
		}})
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "440", targets[0].ProviderGameID)
	})
}

func TestRunAuthFailureAborts(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Validate: func(ctx context.Context) error { return errors.New("session expired") },
		Logger:   zap.NewNop(),
	})

	result, err := c.Run(context.Background(), Request{
		GameIDs:     []string{"440"},
		RequireAuth: true,
	})

	assert.ErrorIs(t, err, ErrAuthValidation)
	assert.Nil(t, result)
	assert.Zero(t, fetcher.callCount(), "nothing may be fetched after a failed precondition")
}

func TestRunAuthNotRequired(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Validate: func(ctx context.Context) error { return errors.New("session expired") },
		Logger:   zap.NewNop(),
	})

	result, err := c.Run(context.Background(), Request{GameIDs: []string{"440"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

func TestRunAtMostOnce(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Logger:   zap.NewNop(),
	})

	// A foreground callback that defensively runs the closure twice still
	// gets exactly one execution.
	result, err := c.Run(context.Background(), Request{
		GameIDs: []string{"440"},
		Foreground: func(run func() error) error {
			if err := run(); err != nil {
				return err
			}
			return run()
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestRunDegradedFetchOnly(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Logger:   zap.NewNop(),
	})

	result, err := c.Run(context.Background(), Request{GameIDs: []string{"440"}})
	require.NoError(t, err)
	assert.True(t, result.CacheUnavailable)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestRunMergesIntoStore(t *testing.T) {
	s := setupCoordStore(t, "coord_merge")
	logger := zap.NewNop()

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	unlocked := true
	fetcher := &fakeFetcher{
		key: "steam",
		snapshot: &reconcile.Snapshot{
			Definitions: []reconcile.IncomingDefinition{
				{APIName: "ach_a"},
				{APIName: "ach_b"},
			},
			Unlocks: []reconcile.IncomingUnlock{
				{APIName: "ach_a", Unlocked: &unlocked, UnlockedAt: &when},
			},
			Complete: true,
		},
	}

	lib := library.NewStatic(library.Entry{GameID: "440", Name: "Team Fortress 2"})
	c := NewCoordinator(Params{
		Store:           s,
		Reconciler:      reconcile.New(s, logger),
		Registry:        newRegistry(fetcher),
		Library:         lib,
		LocalIdentities: map[string]string{"steam": "7656119"},
		Logger:          logger,
	})

	result, err := c.Run(context.Background(), Request{GameID: "440"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.False(t, result.CacheUnavailable)
	assert.NotEmpty(t, result.BatchID)

	ctx := context.Background()
	title, err := s.GetTitle(ctx, "steam", "440")
	require.NoError(t, err)
	assert.Equal(t, "Team Fortress 2", title.DisplayName)
	require.NotNil(t, title.LibraryEntryID)
	assert.Equal(t, "440", *title.LibraryEntryID)
	assert.Equal(t, "static", title.LibrarySource)

	keys, err := s.ListCachedTitleKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, 2, keys[0].TotalCount)
}

func TestRunWithoutLibraryKeepsDisplayMetadata(t *testing.T) {
	s := setupCoordStore(t, "coord_no_library")
	logger := zap.NewNop()
	ctx := context.Background()

	entryID := "440"
	require.NoError(t, s.UpsertTitle(ctx, &models.GameTitle{
		Provider:       "steam",
		ProviderGameID: "440",
		DisplayName:    "Team Fortress 2",
		LibraryEntryID: &entryID,
		LibrarySource:  "static",
	}))

	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Store:      s,
		Reconciler: reconcile.New(s, logger),
		Registry:   newRegistry(fetcher),
		Logger:     logger,
	})

	// No library collaborator: the scan must not blank out what the earlier
	// library-aware run stored.
	result, err := c.Run(ctx, Request{GameID: "440"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	title, err := s.GetTitle(ctx, "steam", "440")
	require.NoError(t, err)
	assert.Equal(t, "Team Fortress 2", title.DisplayName)
	require.NotNil(t, title.LibraryEntryID)
	assert.Equal(t, "440", *title.LibraryEntryID)
	assert.Equal(t, "static", title.LibrarySource)
}

func TestRunAllTargetsFailed(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam", err: errors.New("backend down")}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Logger:   zap.NewNop(),
	})

	result, err := c.Run(context.Background(), Request{GameIDs: []string{"440", "620"}})

	assert.ErrorIs(t, err, ErrBatchFailed)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 0, result.Succeeded)
	assert.Len(t, result.Failed, 2)
}

func TestRunPartialFailureSucceeds(t *testing.T) {
	good := &fakeFetcher{key: "steam"}
	bad := &fakeFetcher{key: "retro", err: errors.New("backend down")}
	c := NewCoordinator(Params{
		Registry: newRegistry(good, bad),
		Logger:   zap.NewNop(),
	})

	// Unmatched ids fan out to every provider; one succeeds, one fails.
	result, err := c.Run(context.Background(), Request{GameIDs: []string{"440"}})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, "retro", result.Failed[0].Target.Provider)
}

func TestSequentialProviderNeverOverlaps(t *testing.T) {
	fetcher := &fakeFetcher{key: "retro", sequential: true, delay: 2 * time.Millisecond}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Workers:  8,
		Logger:   zap.NewNop(),
	})

	result, err := c.Run(context.Background(), Request{
		GameIDs: []string{"1", "2", "3", "4", "5"},
	})

	require.NoError(t, err)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 1, fetcher.maxSeen, "a sequential provider runs one target at a time")
}

func TestRunCancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{key: "steam"}
	c := NewCoordinator(Params{
		Registry: newRegistry(fetcher),
		Logger:   zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, Request{GameIDs: []string{"440"}})
	assert.Error(t, err)
}
