// Package refresh coordinates scan batches over the achievement cache.
//
// A Request resolves to a concrete target set through a strict priority
// ladder: explicit game-id list, single game id, custom multi-provider
// options, typed scan mode, raw mode key, then the quick/recent default.
// Exactly one branch fires per request.
//
// Execution policy sits between resolution and the per-target work: an
// optional authentication precondition aborts the whole batch before any
// target is touched, and an optional foreground callback defers execution to
// a caller-supplied progress surface. Either way the batch body runs at most
// once per request.
//
// Targets fan out over a bounded worker pool; providers flagged sequential
// run their targets one at a time. Failures are target-scoped: the failing
// title's cache entry is left untouched and the batch reports a per-target
// failure count, only failing outright when zero targets succeed.
//
// When the cache store cannot be opened the coordinator still runs in
// degraded fetch-only mode, resolving what it can without the store and
// skipping merges.
package refresh
