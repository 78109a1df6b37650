package reconcile

import (
	"context"
	"time"

	"trophy-manager/feature/achievements/models"
	"trophy-manager/feature/achievements/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler merges freshly fetched snapshots into the store, one
// (identity, title) pair at a time.
type Reconciler struct {
	store  *store.Store
	logger *zap.Logger
}

// New creates a Reconciler.
func New(s *store.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: s, logger: logger}
}

// Reconcile applies one snapshot for a (identity, title) pair. The steps run
// in a fixed order inside a single unit of work: stale pruning, definition
// upserts, unlock upserts, aggregate recompute. The ordering keeps unlock
// record foreign keys valid at every intermediate point.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	identity *models.UserIdentity,
	title *models.GameTitle,
	snapshot Snapshot,
	opts Options,
) (Result, error) {
	var result Result

	err := r.store.WithUnit(ctx, identity.ID, title.ID, func(tx *gorm.DB) error {
		// 1. Existing api-name index and stale set.
		existing, err := store.DefinitionIDsByAPIName(tx, title.ID)
		if err != nil {
			return err
		}

		incomingNames := make([]string, 0, len(snapshot.Definitions))
		for _, def := range snapshot.Definitions {
			incomingNames = append(incomingNames, def.APIName)
		}

		// 2. Prune stale definitions (cascades to their unlock records).
		// Only a complete fetch is allowed to prune: an incomplete snapshot
		// says nothing about achievements it failed to list.
		if snapshot.Complete {
			stale := store.DiffDefinitions(existing, incomingNames)
			if err := store.DeleteDefinitions(tx, stale); err != nil {
				return err
			}
			result.StaleRemoved = len(stale)
		}

		// 3. Upsert definitions in place so unlock foreign keys survive.
		defIDByKey := make(map[string]uint, len(snapshot.Definitions))
		for _, incoming := range snapshot.Definitions {
			def := models.AchievementDefinition{
				TitleID:             title.ID,
				APIName:             incoming.APIName,
				DisplayName:         incoming.DisplayName,
				Description:         incoming.Description,
				UnlockedIconRef:     incoming.UnlockedIconRef,
				LockedIconRef:       incoming.LockedIconRef,
				Hidden:              incoming.Hidden,
				GlobalUnlockPercent: incoming.GlobalUnlockPercent,
				ProgressMax:         incoming.ProgressMax,
				Points:              incoming.Points,
				Category:            incoming.Category,
			}
			created, err := store.UpsertDefinition(tx, &def)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			defIDByKey[def.APINameKey] = def.ID
		}

		// 4. Upsert unlock records. Parents exist by now: progress row first,
		// then records keyed to freshly upserted definition ids.
		progress, err := store.GetOrCreateProgress(tx, identity.ID, title.ID)
		if err != nil {
			return err
		}
		progress.CacheKey = models.ProgressCacheKey(title.Provider, identity.ExternalID, title.ProviderGameID)

		existingUnlocks, err := store.UnlocksByDefinition(tx, progress.ID)
		if err != nil {
			return err
		}

		for _, unlock := range snapshot.Unlocks {
			defID, ok := defIDByKey[models.NormalizeAPIName(unlock.APIName)]
			if !ok {
				// Unlock for an achievement the definition list never
				// mentioned. Malformed payload row; skip it rather than
				// violate referential integrity.
				r.logger.Warn("unlock without matching definition",
					zap.String("provider", title.Provider),
					zap.String("game_id", title.ProviderGameID),
					zap.String("api_name", unlock.APIName),
				)
				continue
			}

			rec := existingUnlocks[defID]
			rec.ProgressID = progress.ID
			rec.DefinitionID = defID

			incoming := resolveUnlocked(unlock)

			if rec.Unlocked && !incoming && !opts.HardOverwrite {
				// One-way ratchet: a locked report never reverts an unlocked
				// record or clears its timestamp.
			} else {
				rec.Unlocked = incoming
				if incoming {
					if unlock.UnlockedAt != nil {
						rec.UnlockedAt = unlock.UnlockedAt
					} else if rec.UnlockedAt == nil {
						now := time.Now()
						rec.UnlockedAt = &now
					}
				} else {
					rec.UnlockedAt = nil
				}
			}

			if unlock.Num != nil && unlock.Denom != nil {
				rec.ProgressNum = unlock.Num
				rec.ProgressDenom = unlock.Denom
			}

			if err := store.SaveUnlock(tx, &rec); err != nil {
				return err
			}
			existingUnlocks[defID] = rec
		}

		// 5. Recompute aggregates from the post-merge row set.
		defs, err := allDefinitions(tx, title.ID)
		if err != nil {
			return err
		}
		records, err := store.UnlocksByDefinition(tx, progress.ID)
		if err != nil {
			return err
		}

		unlocked := 0
		for _, rec := range records {
			if rec.Unlocked {
				unlocked++
			}
		}

		progress.UnlockedCount = unlocked
		progress.TotalCount = len(defs)
		if snapshot.Complete {
			// A complete scan is the only thing permitted to flip this flag.
			progress.HasAchievements = len(defs) > 0
		}

		if err := store.SaveProgress(tx, progress); err != nil {
			return err
		}

		result.UnlockedCount = progress.UnlockedCount
		result.TotalCount = progress.TotalCount
		result.HasAchievements = progress.HasAchievements
		return nil
	})

	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Completion derives whether the pair is complete after a merge. Not stored;
// computed on read against the current definition and unlock sets.
func (r *Reconciler) Completion(ctx context.Context, identityID, titleID uint, capstoneAPIName string) (bool, error) {
	var completed bool
	err := r.store.WithUnit(ctx, identityID, titleID, func(tx *gorm.DB) error {
		defs, err := allDefinitions(tx, titleID)
		if err != nil {
			return err
		}
		progress, err := store.GetOrCreateProgress(tx, identityID, titleID)
		if err != nil {
			return err
		}
		records, err := store.UnlocksByDefinition(tx, progress.ID)
		if err != nil {
			return err
		}
		completed = models.Completed(defs, records, capstoneAPIName)
		return nil
	})
	return completed, err
}

// resolveUnlocked computes the effective unlocked flag for an incoming
// record. Providers that report only a progress fraction get
// unlocked = num >= denom synthesized.
func resolveUnlocked(unlock IncomingUnlock) bool {
	if unlock.Unlocked != nil {
		return *unlock.Unlocked
	}
	if unlock.Num != nil && unlock.Denom != nil && *unlock.Denom > 0 {
		return *unlock.Num >= *unlock.Denom
	}
	return false
}

func allDefinitions(tx *gorm.DB, titleID uint) ([]models.AchievementDefinition, error) {
	var defs []models.AchievementDefinition
	err := tx.Where("title_id = ?", titleID).Find(&defs).Error
	return defs, err
}
