// Package utils provides scalar coercion helpers for loosely-typed provider
// payloads.
//
// Provider APIs return achievement fields with inconsistent scalar types
// (numbers as strings, booleans as 0/1 integers, timestamps as floats). The
// converters in this package normalize those values so the provider adapters
// can build typed snapshots without per-field type switches.
package utils
