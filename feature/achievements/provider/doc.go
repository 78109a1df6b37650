// Package provider defines the fetch boundary between the sync engine and
// per-provider network clients.
//
// Concrete clients (Steam, RetroAchievements, GOG, ...) implement Fetcher and
// map their native payloads into the normalized Snapshot via FromRaw or by
// hand. The registry applies the enable-list from configuration and the
// RateLimited wrapper throttles providers with fragile backends.
//
// Provider-specific payload parsing stays out of the core: by the time a
// snapshot reaches the reconciler it is fully typed.
package provider
