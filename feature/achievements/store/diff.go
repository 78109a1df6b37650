package store

import (
	"context"
	"time"

	"trophy-manager/feature/achievements/models"
)

// DiffDefinitions computes which existing definition rows are stale: their
// normalized api name no longer appears in the incoming set. Both sides are
// normalized (trim, case-fold) before comparison. Non-positive ids are
// defensive sentinels and never returned.
//
// An empty or nil incoming set marks every existing row stale. That is the
// intended reading of a complete provider response with zero achievements;
// distinguishing a transient empty response is the caller's job.
func DiffDefinitions(existing map[string]uint, incoming []string) []uint {
	incomingSet := make(map[string]struct{}, len(incoming))
	for _, name := range incoming {
		incomingSet[models.NormalizeAPIName(name)] = struct{}{}
	}

	var stale []uint
	for name, id := range existing {
		if id == 0 {
			continue
		}
		if _, ok := incomingSet[models.NormalizeAPIName(name)]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

// TitleKey identifies one cached (identity, title) pair together with the
// scan flags the refresh coordinator filters on.
type TitleKey struct {
	TitleID         uint
	IdentityID      uint
	Provider        string
	ProviderGameID  string
	LibraryEntryID  *string
	HasAchievements bool
	ExcludedByUser  bool
	TotalCount      int
	LastUpdated     time.Time
}

// ListCachedTitleKeys returns the key and scan flags of every cached
// (identity, title) pair. The refresh coordinator evaluates scan-mode
// predicates against this list plus external library metadata.
func (s *Store) ListCachedTitleKeys(ctx context.Context) ([]TitleKey, error) {
	var keys []TitleKey
	err := s.db.WithContext(ctx).
		Table("game_progress").
		Select(`game_progress.title_id,
			game_progress.identity_id,
			game_titles.provider,
			game_titles.provider_game_id,
			game_titles.library_entry_id,
			game_progress.has_achievements,
			game_progress.excluded_by_user,
			game_progress.total_count,
			game_progress.last_updated`).
		Joins("JOIN game_titles ON game_titles.id = game_progress.title_id").
		Order("game_progress.title_id").
		Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
