// Package config loads application configuration.
//
// Configuration is sourced from environment variables, optionally seeded by
// a .env file. Defaults are declared as struct tags on the partial config
// structs (server, storage, log, database, refresh, providers) and bound
// into Viper via reflection, so every key is overridable through the
// SECTION_KEY environment convention (e.g. DATABASE_PATH, REFRESH_WORKERS).
package config
