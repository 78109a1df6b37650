// Package store owns persistence for the achievement cache.
//
// All mutating operations are scoped to a single (identity, title) unit of
// work: WithUnit holds the pair's lock and wraps the writes in one
// transaction, so a unit either fully applies or leaves prior state
// untouched. There are no cross-title transactions; concurrent units for
// disjoint pairs run in parallel while units for the same pair serialize.
//
// DiffDefinitions is the pure helper behind stale pruning: given the existing
// api-name index and the incoming name set it returns the row ids to delete.
// The reconciler is responsible for only invoking it on a complete fetch;
// the store itself cannot tell a real zero-achievement response apart from a
// truncated one.
package store
