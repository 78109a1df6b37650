// Package reconcile merges freshly fetched achievement snapshots into the
// persistent cache.
//
// One Reconcile call covers one (identity, title) pair and runs as a single
// unit of work in a fixed order:
//
//  1. Index existing definitions by normalized api name
//  2. Prune stale definitions (complete snapshots only), cascading to their
//     unlock records
//  3. Upsert incoming definitions in place, preserving row ids
//  4. Upsert unlock records under the one-way ratchet: an unlocked record
//     with a timestamp never reverts on a locked report unless the caller
//     asks for a hard overwrite
//  5. Recompute the progress aggregates from the post-merge rows
//
// A complete snapshot with zero definitions means the title has lost its
// achievement list: everything is pruned and has_achievements becomes false.
// That policy is deliberate; the Complete flag is what shields it from
// transient empty responses.
package reconcile
