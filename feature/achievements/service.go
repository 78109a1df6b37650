package achievements

import (
	"context"
	"time"

	"trophy-manager/feature/achievements/models"
	"trophy-manager/feature/achievements/store"

	"go.uber.org/zap"
)

// CapstoneResolver looks up the manual capstone override for a title from
// external settings. Empty string means no override.
type CapstoneResolver func(provider, gameID string) string

// Service handles read-only achievement queries for the API.
type Service struct {
	store    *store.Store
	logger   *zap.Logger
	capstone CapstoneResolver
}

// NewService creates a new achievements service. capstone may be nil.
func NewService(s *store.Store, logger *zap.Logger, capstone CapstoneResolver) *Service {
	if capstone == nil {
		capstone = func(string, string) string { return "" }
	}
	return &Service{store: s, logger: logger, capstone: capstone}
}

// TitleSummary is one cached title with its aggregate progress.
type TitleSummary struct {
	Provider        string    `json:"provider"`
	ProviderGameID  string    `json:"provider_game_id"`
	DisplayName     string    `json:"display_name"`
	UnlockedCount   int       `json:"unlocked_count"`
	TotalCount      int       `json:"total_count"`
	HasAchievements bool      `json:"has_achievements"`
	ExcludedByUser  bool      `json:"excluded_by_user"`
	LastUpdated     time.Time `json:"last_updated"`
}

// AchievementView is one definition with its unlock state.
type AchievementView struct {
	APIName             string     `json:"api_name"`
	DisplayName         string     `json:"display_name"`
	Description         string     `json:"description"`
	Hidden              bool       `json:"hidden"`
	GlobalUnlockPercent float64    `json:"global_unlock_percent"`
	Points              int        `json:"points"`
	Category            string     `json:"category"`
	Unlocked            bool       `json:"unlocked"`
	UnlockedAt          *time.Time `json:"unlocked_at,omitempty"`
	ProgressNum         *int       `json:"progress_num,omitempty"`
	ProgressDenom       *int       `json:"progress_denom,omitempty"`
}

// TitleDetail is the full view of one cached title.
type TitleDetail struct {
	TitleSummary
	Completed    bool              `json:"completed"`
	Achievements []AchievementView `json:"achievements"`
}

// ListTitles returns summaries for every cached title.
func (s *Service) ListTitles(ctx context.Context) ([]TitleSummary, error) {
	var summaries []TitleSummary
	err := s.store.DB().WithContext(ctx).
		Table("game_progress").
		Select(`game_titles.provider,
			game_titles.provider_game_id,
			game_titles.display_name,
			game_progress.unlocked_count,
			game_progress.total_count,
			game_progress.has_achievements,
			game_progress.excluded_by_user,
			game_progress.last_updated`).
		Joins("JOIN game_titles ON game_titles.id = game_progress.title_id").
		Order("game_titles.provider, game_titles.provider_game_id").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// TitleDetail returns the full achievement view for one title, including
// derived completion.
func (s *Service) TitleDetail(ctx context.Context, provider, gameID string) (*TitleDetail, error) {
	title, err := s.store.GetTitle(ctx, provider, gameID)
	if err != nil {
		return nil, err
	}

	defs, err := s.store.DefinitionsForTitle(ctx, title.ID)
	if err != nil {
		return nil, err
	}

	// Local-user progress for this title.
	var progress models.GameProgress
	err = s.store.DB().WithContext(ctx).
		Joins("JOIN user_identities ON user_identities.id = game_progress.identity_id").
		Where("game_progress.title_id = ? AND user_identities.is_local_user = ?", title.ID, true).
		First(&progress).Error
	if err != nil {
		return nil, store.ErrNotFound
	}

	var records []models.UnlockRecord
	if err := s.store.DB().WithContext(ctx).
		Where("progress_id = ?", progress.ID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	unlocksByDef := make(map[uint]models.UnlockRecord, len(records))
	for _, rec := range records {
		unlocksByDef[rec.DefinitionID] = rec
	}

	detail := &TitleDetail{
		TitleSummary: TitleSummary{
			Provider:        title.Provider,
			ProviderGameID:  title.ProviderGameID,
			DisplayName:     title.DisplayName,
			UnlockedCount:   progress.UnlockedCount,
			TotalCount:      progress.TotalCount,
			HasAchievements: progress.HasAchievements,
			ExcludedByUser:  progress.ExcludedByUser,
			LastUpdated:     progress.LastUpdated,
		},
		Completed: models.Completed(defs, unlocksByDef, s.capstone(provider, gameID)),
	}

	for _, def := range defs {
		view := AchievementView{
			APIName:             def.APIName,
			DisplayName:         def.DisplayName,
			Description:         def.Description,
			Hidden:              def.Hidden,
			GlobalUnlockPercent: def.GlobalUnlockPercent,
			Points:              def.Points,
			Category:            def.Category,
		}
		if rec, ok := unlocksByDef[def.ID]; ok {
			view.Unlocked = rec.Unlocked
			view.UnlockedAt = rec.UnlockedAt
			view.ProgressNum = rec.ProgressNum
			view.ProgressDenom = rec.ProgressDenom
		}
		detail.Achievements = append(detail.Achievements, view)
	}

	return detail, nil
}
