package models

import (
	"strings"
	"time"
)

// GameTitle is one game as known to one provider. A game tracked by two
// providers has two rows, linked externally through LibraryEntryID.
type GameTitle struct {
	ID             uint    `gorm:"column:id;primaryKey"`
	Provider       string  `gorm:"column:provider;size:32;not null;uniqueIndex:idx_titles_provider_game,priority:1"`
	ProviderGameID string  `gorm:"column:provider_game_id;size:128;not null;uniqueIndex:idx_titles_provider_game,priority:2"`
	DisplayName    string  `gorm:"column:display_name;size:255"`
	LibraryEntryID *string `gorm:"column:library_entry_id;size:64;index"`
	LibrarySource  string  `gorm:"column:library_source;size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName overrides the table name.
func (GameTitle) TableName() string {
	return "game_titles"
}

// UserIdentity is the account whose unlock progress is tracked. Normally the
// local user; non-local identities are reserved for friend comparisons.
type UserIdentity struct {
	ID          uint   `gorm:"column:id;primaryKey"`
	Provider    string `gorm:"column:provider;size:32;not null;uniqueIndex:idx_identities_provider_ext,priority:1"`
	ExternalID  string `gorm:"column:external_id;size:128;not null;uniqueIndex:idx_identities_provider_ext,priority:2"`
	DisplayName string `gorm:"column:display_name;size:255"`
	IsLocalUser bool   `gorm:"column:is_local_user;default:true"`
	Source      string `gorm:"column:source;size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the table name.
func (UserIdentity) TableName() string {
	return "user_identities"
}

// AchievementDefinition is the schema metadata for one achievement, shared
// across identities for the same title. APINameKey holds the normalized api
// name and carries the case-insensitive uniqueness constraint.
type AchievementDefinition struct {
	ID                  uint    `gorm:"column:id;primaryKey"`
	TitleID             uint    `gorm:"column:title_id;not null;uniqueIndex:idx_defs_title_api,priority:1"`
	APIName             string  `gorm:"column:api_name;size:255;not null"`
	APINameKey          string  `gorm:"column:api_name_key;size:255;not null;uniqueIndex:idx_defs_title_api,priority:2"`
	DisplayName         string  `gorm:"column:display_name;size:255"`
	Description         string  `gorm:"column:description;type:text"`
	UnlockedIconRef     string  `gorm:"column:unlocked_icon_ref;size:512"`
	LockedIconRef       string  `gorm:"column:locked_icon_ref;size:512"`
	Hidden              bool    `gorm:"column:hidden"`
	GlobalUnlockPercent float64 `gorm:"column:global_unlock_percent"`
	ProgressMax         int     `gorm:"column:progress_max"`
	Points              int     `gorm:"column:points"`
	Category            string  `gorm:"column:category;size:128"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName overrides the table name.
func (AchievementDefinition) TableName() string {
	return "achievement_definitions"
}

// GameProgress is the per-(identity, title) aggregate row. Counters are
// derived from unlock records during reconciliation, never mutated directly.
type GameProgress struct {
	ID              uint      `gorm:"column:id;primaryKey"`
	IdentityID      uint      `gorm:"column:identity_id;not null;uniqueIndex:idx_progress_identity_title,priority:1"`
	TitleID         uint      `gorm:"column:title_id;not null;uniqueIndex:idx_progress_identity_title,priority:2"`
	CacheKey        string    `gorm:"column:cache_key;size:128"`
	HasAchievements bool      `gorm:"column:has_achievements;default:true"`
	ExcludedByUser  bool      `gorm:"column:excluded_by_user"`
	UnlockedCount   int       `gorm:"column:unlocked_count"`
	TotalCount      int       `gorm:"column:total_count"`
	LastUpdated     time.Time `gorm:"column:last_updated"`
}

// TableName overrides the table name.
func (GameProgress) TableName() string {
	return "game_progress"
}

// UnlockRecord is the only mutable per-achievement state: unlock flag,
// timestamp, and an optional progress fraction. Both parents must exist
// before a record is written; the reconciler enforces the ordering.
type UnlockRecord struct {
	ID            uint       `gorm:"column:id;primaryKey"`
	ProgressID    uint       `gorm:"column:progress_id;not null;uniqueIndex:idx_unlocks_progress_def,priority:1"`
	DefinitionID  uint       `gorm:"column:definition_id;not null;uniqueIndex:idx_unlocks_progress_def,priority:2"`
	Unlocked      bool       `gorm:"column:unlocked"`
	UnlockedAt    *time.Time `gorm:"column:unlocked_at"`
	ProgressNum   *int       `gorm:"column:progress_num"`
	ProgressDenom *int       `gorm:"column:progress_denom"`
	LastUpdated   time.Time  `gorm:"column:last_updated"`
}

// TableName overrides the table name.
func (UnlockRecord) TableName() string {
	return "unlock_records"
}

// Fraction returns the progress fraction when both parts are present.
func (u UnlockRecord) Fraction() (num, denom int, ok bool) {
	if u.ProgressNum == nil || u.ProgressDenom == nil {
		return 0, 0, false
	}
	return *u.ProgressNum, *u.ProgressDenom, true
}

// ProgressCacheKey builds the stable external key for a progress row. External
// tooling addresses cached pairs with it, so the format must not change.
func ProgressCacheKey(provider, identityExternalID, providerGameID string) string {
	return provider + ":" + identityExternalID + ":" + providerGameID
}

// NormalizeAPIName trims and case-folds an api name. Providers are not
// consistent about casing between the definition list and the unlock list, so
// every api-name comparison goes through this.
func NormalizeAPIName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Completed reports whether a title is complete: either every definition has
// an unlocked record, or the designated capstone achievement (a manual
// per-title override) is unlocked. Derived on read, never stored.
func Completed(defs []AchievementDefinition, unlocksByDef map[uint]UnlockRecord, capstoneAPIName string) bool {
	if len(defs) == 0 {
		return false
	}

	capstone := NormalizeAPIName(capstoneAPIName)
	all := true
	for _, def := range defs {
		rec, ok := unlocksByDef[def.ID]
		unlocked := ok && rec.Unlocked
		if capstone != "" && def.APINameKey == capstone && unlocked {
			return true
		}
		if !unlocked {
			all = false
		}
	}
	return all
}

// AllTables lists every cache table, in creation order.
// Used by migration and by the cache verify command.
func AllTables() []any {
	return []any{
		&GameTitle{},
		&UserIdentity{},
		&AchievementDefinition{},
		&GameProgress{},
		&UnlockRecord{},
	}
}

// TableNames returns the table names behind AllTables.
func TableNames() []string {
	return []string{
		GameTitle{}.TableName(),
		UserIdentity{}.TableName(),
		AchievementDefinition{}.TableName(),
		GameProgress{}.TableName(),
		UnlockRecord{}.TableName(),
	}
}
