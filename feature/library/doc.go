// Package library exposes the host application's game library as a read-only
// metadata source.
//
// Scan-mode predicates (installed, favorites, quick/recent) consult it for
// install state, favorite flags and last-played recency. The sync engine
// never writes through this interface.
package library
