// Package storage provides the object storage client used by the icon mirror.
//
// It wraps the Minio SDK behind a small Client interface so features and
// tests can substitute mocks (see the mocks subpackage). The mirror stores
// achievement icon assets under hash-keyed object names; see
// feature/iconcache for the mirroring logic.
//
// The client applies strict transport-level timeouts so a slow or unreachable
// storage endpoint degrades a refresh batch instead of hanging it.
package storage
