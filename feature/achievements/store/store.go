package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trophy-manager/feature/achievements/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the requested row does not exist in the cache.
var ErrNotFound = errors.New("not found in achievement cache")

// Store owns all reads and writes against the achievement cache. Mutations
// are grouped into per-(identity, title) units of work; a keyed lock
// serializes units touching the same pair while disjoint pairs proceed in
// parallel.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[unitKey]*unitLock
}

type unitKey struct {
	identityID uint
	titleID    uint
}

type unitLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Store over an open cache database.
func New(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[unitKey]*unitLock),
	}
}

// Migrate creates or updates the cache schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return fmt.Errorf("failed to migrate achievement cache: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for read-only consumers (API service,
// schema inspector). Writers must go through WithUnit.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// acquire locks the (identity, title) pair and returns its release func.
// Lock entries are reference counted so the map does not grow without bound.
func (s *Store) acquire(identityID, titleID uint) func() {
	key := unitKey{identityID: identityID, titleID: titleID}

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &unitLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// WithUnit runs fn as one unit of work for a (identity, title) pair: the
// pair's lock is held for the duration and all writes happen inside a single
// transaction, so a failure leaves prior state untouched. At most one unit is
// in flight per pair; a second caller blocks until the first commits.
func (s *Store) WithUnit(ctx context.Context, identityID, titleID uint, fn func(tx *gorm.DB) error) error {
	release := s.acquire(identityID, titleID)
	defer release()

	return s.db.WithContext(ctx).Transaction(fn)
}

// UpsertTitle finds or creates the title row for (provider, gameID) and
// refreshes its display fields. The row id is stable across upserts.
func (s *Store) UpsertTitle(ctx context.Context, title *models.GameTitle) error {
	var existing models.GameTitle
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_game_id = ?", title.Provider, title.ProviderGameID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(title).Error
	}
	if err != nil {
		return err
	}

	// An upsert without library metadata must not clobber display fields a
	// previous library-aware scan stored.
	if title.DisplayName == "" {
		title.DisplayName = existing.DisplayName
	}
	if title.LibraryEntryID == nil {
		title.LibraryEntryID = existing.LibraryEntryID
	}
	if title.LibrarySource == "" {
		title.LibrarySource = existing.LibrarySource
	}

	title.ID = existing.ID
	title.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(title).Error
}

// UpsertIdentity finds or creates the identity row for (provider, externalID).
func (s *Store) UpsertIdentity(ctx context.Context, identity *models.UserIdentity) error {
	var existing models.UserIdentity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", identity.Provider, identity.ExternalID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(identity).Error
	}
	if err != nil {
		return err
	}

	identity.ID = existing.ID
	identity.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(identity).Error
}

// GetTitle loads a title row by its provider-scoped key.
func (s *Store) GetTitle(ctx context.Context, provider, gameID string) (*models.GameTitle, error) {
	var title models.GameTitle
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_game_id = ?", provider, gameID).
		First(&title).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &title, nil
}

// DefinitionIDsByAPIName returns the normalized api-name to row-id map for a
// title. This is the "existing" side of DiffDefinitions.
func DefinitionIDsByAPIName(tx *gorm.DB, titleID uint) (map[string]uint, error) {
	var defs []models.AchievementDefinition
	if err := tx.Where("title_id = ?", titleID).Find(&defs).Error; err != nil {
		return nil, err
	}
	index := make(map[string]uint, len(defs))
	for _, def := range defs {
		index[def.APINameKey] = def.ID
	}
	return index, nil
}

// DefinitionsForTitle loads all definitions for a title.
func (s *Store) DefinitionsForTitle(ctx context.Context, titleID uint) ([]models.AchievementDefinition, error) {
	var defs []models.AchievementDefinition
	err := s.db.WithContext(ctx).
		Where("title_id = ?", titleID).
		Order("id").
		Find(&defs).Error
	return defs, err
}

// DeleteDefinitions removes stale definitions and cascades to their unlock
// records in the same transaction. Must run before upserts so foreign keys
// stay valid at every intermediate point.
func DeleteDefinitions(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("definition_id IN ?", ids).Delete(&models.UnlockRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.AchievementDefinition{}).Error
}

// UpsertDefinition writes a definition, preserving the existing row id when
// the normalized api name already exists for the title (update in place).
// Returns true when a new row was created.
func UpsertDefinition(tx *gorm.DB, def *models.AchievementDefinition) (created bool, err error) {
	def.APINameKey = models.NormalizeAPIName(def.APIName)

	var existing models.AchievementDefinition
	err = tx.Where("title_id = ? AND api_name_key = ?", def.TitleID, def.APINameKey).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, tx.Create(def).Error
	}
	if err != nil {
		return false, err
	}

	def.ID = existing.ID
	def.CreatedAt = existing.CreatedAt
	return false, tx.Save(def).Error
}

// GetOrCreateProgress loads the progress row for a pair, creating it with
// has_achievements=true on first sight so the title is not prematurely
// excluded from scanning.
func GetOrCreateProgress(tx *gorm.DB, identityID, titleID uint) (*models.GameProgress, error) {
	var progress models.GameProgress
	err := tx.Where("identity_id = ? AND title_id = ?", identityID, titleID).
		First(&progress).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		progress = models.GameProgress{
			IdentityID:      identityID,
			TitleID:         titleID,
			HasAchievements: true,
			LastUpdated:     time.Now(),
		}
		if err := tx.Create(&progress).Error; err != nil {
			return nil, err
		}
		return &progress, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// UnlocksByDefinition returns unlock records for a progress row indexed by
// definition id.
func UnlocksByDefinition(tx *gorm.DB, progressID uint) (map[uint]models.UnlockRecord, error) {
	var records []models.UnlockRecord
	if err := tx.Where("progress_id = ?", progressID).Find(&records).Error; err != nil {
		return nil, err
	}
	index := make(map[uint]models.UnlockRecord, len(records))
	for _, rec := range records {
		index[rec.DefinitionID] = rec
	}
	return index, nil
}

// SaveUnlock writes an unlock record by its (progress, definition) key.
func SaveUnlock(tx *gorm.DB, rec *models.UnlockRecord) error {
	rec.LastUpdated = time.Now()
	if rec.ID != 0 {
		return tx.Save(rec).Error
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "progress_id"}, {Name: "definition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"unlocked", "unlocked_at", "progress_num", "progress_denom", "last_updated",
		}),
	}).Create(rec).Error
}

// SaveProgress persists recomputed aggregate counters. The excluded_by_user
// flag is owned by external settings and is intentionally not overwritten
// here: callers must carry the loaded value through unchanged.
func SaveProgress(tx *gorm.DB, progress *models.GameProgress) error {
	progress.LastUpdated = time.Now()
	return tx.Save(progress).Error
}

// SetExcluded flips the user-exclusion flag for a pair. This is the only
// writer of excluded_by_user; scans never touch it.
func (s *Store) SetExcluded(ctx context.Context, identityID, titleID uint, excluded bool) error {
	return s.WithUnit(ctx, identityID, titleID, func(tx *gorm.DB) error {
		return tx.Model(&models.GameProgress{}).
			Where("identity_id = ? AND title_id = ?", identityID, titleID).
			Update("excluded_by_user", excluded).Error
	})
}

// ClearTitle removes one title and everything hanging off it. Explicit cache
// clear is the only path that deletes title rows.
func (s *Store) ClearTitle(ctx context.Context, provider, gameID string) error {
	title, err := s.GetTitle(ctx, provider, gameID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var progressIDs []uint
		if err := tx.Model(&models.GameProgress{}).
			Where("title_id = ?", title.ID).
			Pluck("id", &progressIDs).Error; err != nil {
			return err
		}
		if len(progressIDs) > 0 {
			if err := tx.Where("progress_id IN ?", progressIDs).Delete(&models.UnlockRecord{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("title_id = ?", title.ID).Delete(&models.GameProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Where("title_id = ?", title.ID).Delete(&models.AchievementDefinition{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GameTitle{}, title.ID).Error
	})
}

// ClearAll wipes the entire cache.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.UnlockRecord{},
			&models.GameProgress{},
			&models.AchievementDefinition{},
			&models.UserIdentity{},
			&models.GameTitle{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
