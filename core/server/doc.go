// Package server holds configuration for the read-only HTTP API.
//
// The API exposes cached titles, achievement definitions and unlock progress
// for debugging and operational inspection. It never mutates the cache; all
// writes go through refresh batches.
//
// Access is guarded by an optional API key configured via SERVER_API_KEY.
package server
