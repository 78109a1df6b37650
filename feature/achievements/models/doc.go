// Package models defines the achievement cache schema.
//
// Five entities form the relational model:
//
//   - GameTitle: one game per provider, keyed (provider, provider_game_id)
//   - UserIdentity: whose progress is stored, keyed (provider, external_id)
//   - AchievementDefinition: per-title achievement metadata, keyed by
//     case-insensitive api name within a title
//   - GameProgress: per-(identity, title) aggregates and scan flags
//   - UnlockRecord: per-achievement unlock state, the only mutable leaf
//
// Title and identity rows are created on first successful fetch and removed
// only by an explicit cache clear. Definitions are created, updated and
// stale-pruned on every scan; unlock records follow their definition's
// lifecycle.
//
// Completion is derived on read (all definitions unlocked, or the capstone
// achievement unlocked) and is deliberately not a stored column.
package models
