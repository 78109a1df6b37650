// Package identify derives canonical catalog hashes from game content.
//
// Some providers key their catalog by a content hash instead of a stable
// platform id. The hash convention varies per platform: dump-tool headers
// must be skipped, byte order normalized, or only the boot executable of a
// disc image hashed. The per-platform rule table encodes those conventions;
// platforms without an entry hash the whole byte stream.
//
// The package is pure: content bytes arrive from the caller and nothing here
// performs I/O or suspends. Missing structural landmarks degrade to the
// whole-file digest rather than erroring, since the caller cannot cheaply
// tell a wrong rule from a corrupt file.
package identify
