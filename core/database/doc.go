// Package database handles cache database connections and schema inspection.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) that opens
// the file-backed sqlite achievement cache (the default) or a mysql database
// for shared-host deployments.
//
// # Connect
//
// Connect establishes the connection and verifies it with a ping. Any failure
// mode (missing file permissions, corruption, version mismatch, unreachable
// host) is wrapped in ErrCacheUnavailable so callers can degrade to
// fetch-only operation instead of crashing the host process.
//
// # Schema Inspection
//
// The package includes tools to inspect the database schema, used by the
// cache verify command to detect drift between the on-disk cache file and the
// expected achievement tables.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if errors.Is(err, database.ErrCacheUnavailable) {
//	    // continue fetch-only, no merge
//	}
package database
