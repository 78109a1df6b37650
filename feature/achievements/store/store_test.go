package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"trophy-manager/feature/achievements/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestStore creates a migrated in-memory SQLite store
func setupTestStore(t *testing.T, dbName string) *Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return New(db)
}

func TestUpsertTitleKeepsID(t *testing.T) {
	s := setupTestStore(t, "store_upsert_title")
	ctx := context.Background()

	title := &models.GameTitle{Provider: "steam", ProviderGameID: "440", DisplayName: "Team Fortress 2"}
	require.NoError(t, s.UpsertTitle(ctx, title))
	require.NotZero(t, title.ID)
	firstID := title.ID

	// Second upsert with refreshed metadata keeps the same row.
	again := &models.GameTitle{Provider: "steam", ProviderGameID: "440", DisplayName: "TF2"}
	require.NoError(t, s.UpsertTitle(ctx, again))
	assert.Equal(t, firstID, again.ID)

	loaded, err := s.GetTitle(ctx, "steam", "440")
	require.NoError(t, err)
	assert.Equal(t, "TF2", loaded.DisplayName)

	var count int64
	s.DB().Model(&models.GameTitle{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpsertTitlePreservesDisplayFields(t *testing.T) {
	s := setupTestStore(t, "store_upsert_title_preserve")
	ctx := context.Background()

	entryID := "440"
	title := &models.GameTitle{
		Provider:       "steam",
		ProviderGameID: "440",
		DisplayName:    "Team Fortress 2",
		LibraryEntryID: &entryID,
		LibrarySource:  "file:library.json",
	}
	require.NoError(t, s.UpsertTitle(ctx, title))

	// A scan without library metadata must not wipe what the earlier
	// library-aware scan stored.
	bare := &models.GameTitle{Provider: "steam", ProviderGameID: "440"}
	require.NoError(t, s.UpsertTitle(ctx, bare))

	loaded, err := s.GetTitle(ctx, "steam", "440")
	require.NoError(t, err)
	assert.Equal(t, "Team Fortress 2", loaded.DisplayName)
	require.NotNil(t, loaded.LibraryEntryID)
	assert.Equal(t, "440", *loaded.LibraryEntryID)
	assert.Equal(t, "file:library.json", loaded.LibrarySource)

	// Fresh metadata still wins over the stored values.
	renamed := &models.GameTitle{Provider: "steam", ProviderGameID: "440", DisplayName: "TF2"}
	require.NoError(t, s.UpsertTitle(ctx, renamed))
	loaded, err = s.GetTitle(ctx, "steam", "440")
	require.NoError(t, err)
	assert.Equal(t, "TF2", loaded.DisplayName)
}

func TestGetTitleNotFound(t *testing.T) {
	s := setupTestStore(t, "store_title_missing")

	_, err := s.GetTitle(context.Background(), "steam", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIdentityKeepsID(t *testing.T) {
	s := setupTestStore(t, "store_upsert_identity")
	ctx := context.Background()

	identity := &models.UserIdentity{Provider: "steam", ExternalID: "7656119", IsLocalUser: true}
	require.NoError(t, s.UpsertIdentity(ctx, identity))
	firstID := identity.ID

	again := &models.UserIdentity{Provider: "steam", ExternalID: "7656119", DisplayName: "player one"}
	require.NoError(t, s.UpsertIdentity(ctx, again))
	assert.Equal(t, firstID, again.ID)
}

func TestUpsertDefinitionPreservesRowID(t *testing.T) {
	s := setupTestStore(t, "store_upsert_def")

	def := &models.AchievementDefinition{TitleID: 1, APIName: " ACH_WIN "}
	created, err := UpsertDefinition(s.DB(), def)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ach_win", def.APINameKey)
	firstID := def.ID

	// Same achievement under different casing updates in place.
	update := &models.AchievementDefinition{TitleID: 1, APIName: "ach_win", DisplayName: "Winner"}
	created, err = UpsertDefinition(s.DB(), update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, update.ID)
}

func TestGetOrCreateProgressDefaults(t *testing.T) {
	s := setupTestStore(t, "store_progress")

	progress, err := GetOrCreateProgress(s.DB(), 1, 2)
	require.NoError(t, err)
	assert.True(t, progress.HasAchievements, "new progress rows must default to scannable")
	assert.False(t, progress.ExcludedByUser)

	again, err := GetOrCreateProgress(s.DB(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, progress.ID, again.ID)
}

func TestSaveUnlockUpsertsOnPairKey(t *testing.T) {
	s := setupTestStore(t, "store_unlock")

	progress, err := GetOrCreateProgress(s.DB(), 1, 1)
	require.NoError(t, err)

	rec := &models.UnlockRecord{ProgressID: progress.ID, DefinitionID: 7, Unlocked: false}
	require.NoError(t, SaveUnlock(s.DB(), rec))

	// A second write against the same pair updates, not duplicates.
	update := &models.UnlockRecord{ProgressID: progress.ID, DefinitionID: 7, Unlocked: true}
	require.NoError(t, SaveUnlock(s.DB(), update))

	records, err := UnlocksByDefinition(s.DB(), progress.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[7].Unlocked)
}

func TestDeleteDefinitionsCascades(t *testing.T) {
	s := setupTestStore(t, "store_delete_defs")

	def := &models.AchievementDefinition{TitleID: 1, APIName: "ach_gone"}
	_, err := UpsertDefinition(s.DB(), def)
	require.NoError(t, err)

	progress, err := GetOrCreateProgress(s.DB(), 1, 1)
	require.NoError(t, err)
	require.NoError(t, SaveUnlock(s.DB(), &models.UnlockRecord{
		ProgressID:   progress.ID,
		DefinitionID: def.ID,
		Unlocked:     true,
	}))

	require.NoError(t, DeleteDefinitions(s.DB(), []uint{def.ID}))

	records, err := UnlocksByDefinition(s.DB(), progress.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "unlock records must go with their definition")

	var count int64
	s.DB().Model(&models.AchievementDefinition{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWithUnitSerializesSamePair(t *testing.T) {
	s := setupTestStore(t, "store_unit_lock")
	ctx := context.Background()

	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithUnit(ctx, 1, 1, func(tx *gorm.DB) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "units for the same pair must not overlap")
}

func TestSetExcluded(t *testing.T) {
	s := setupTestStore(t, "store_excluded")
	ctx := context.Background()

	_, err := GetOrCreateProgress(s.DB(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, s.SetExcluded(ctx, 1, 1, true))

	progress, err := GetOrCreateProgress(s.DB(), 1, 1)
	require.NoError(t, err)
	assert.True(t, progress.ExcludedByUser)
}

func TestClearTitle(t *testing.T) {
	s := setupTestStore(t, "store_clear_title")
	ctx := context.Background()

	title := &models.GameTitle{Provider: "steam", ProviderGameID: "440"}
	require.NoError(t, s.UpsertTitle(ctx, title))
	keep := &models.GameTitle{Provider: "steam", ProviderGameID: "620"}
	require.NoError(t, s.UpsertTitle(ctx, keep))

	def := &models.AchievementDefinition{TitleID: title.ID, APIName: "ach_win"}
	_, err := UpsertDefinition(s.DB(), def)
	require.NoError(t, err)

	progress, err := GetOrCreateProgress(s.DB(), 1, title.ID)
	require.NoError(t, err)
	require.NoError(t, SaveUnlock(s.DB(), &models.UnlockRecord{
		ProgressID:   progress.ID,
		DefinitionID: def.ID,
		Unlocked:     true,
	}))

	require.NoError(t, s.ClearTitle(ctx, "steam", "440"))

	_, err = s.GetTitle(ctx, "steam", "440")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTitle(ctx, "steam", "620")
	assert.NoError(t, err, "other titles untouched")

	var count int64
	s.DB().Model(&models.UnlockRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestClearAll(t *testing.T) {
	s := setupTestStore(t, "store_clear_all")
	ctx := context.Background()

	title := &models.GameTitle{Provider: "steam", ProviderGameID: "440"}
	require.NoError(t, s.UpsertTitle(ctx, title))
	identity := &models.UserIdentity{Provider: "steam", ExternalID: "local"}
	require.NoError(t, s.UpsertIdentity(ctx, identity))
	_, err := GetOrCreateProgress(s.DB(), identity.ID, title.ID)
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))

	for _, model := range models.AllTables() {
		var count int64
		s.DB().Model(model).Count(&count)
		assert.Equal(t, int64(0), count)
	}
}

func TestListCachedTitleKeys(t *testing.T) {
	s := setupTestStore(t, "store_title_keys")
	ctx := context.Background()

	entryID := "lib-42"
	title := &models.GameTitle{Provider: "retro", ProviderGameID: "9001", LibraryEntryID: &entryID}
	require.NoError(t, s.UpsertTitle(ctx, title))
	identity := &models.UserIdentity{Provider: "retro", ExternalID: "local"}
	require.NoError(t, s.UpsertIdentity(ctx, identity))
	progress, err := GetOrCreateProgress(s.DB(), identity.ID, title.ID)
	require.NoError(t, err)
	progress.TotalCount = 12
	require.NoError(t, SaveProgress(s.DB(), progress))

	keys, err := s.ListCachedTitleKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	key := keys[0]
	assert.Equal(t, title.ID, key.TitleID)
	assert.Equal(t, identity.ID, key.IdentityID)
	assert.Equal(t, "retro", key.Provider)
	assert.Equal(t, "9001", key.ProviderGameID)
	require.NotNil(t, key.LibraryEntryID)
	assert.Equal(t, "lib-42", *key.LibraryEntryID)
	assert.True(t, key.HasAchievements)
	assert.Equal(t, 12, key.TotalCount)
}
