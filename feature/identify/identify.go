package identify

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyContent indicates there was nothing to hash.
var ErrEmptyContent = errors.New("empty content")

// Identify derives the canonical catalog hash for a piece of game content.
// The per-platform rule table selects the method; platforms without an entry
// hash the whole byte stream.
//
// Identification never fails on a missing structural landmark: when magic
// bytes or a boot sector are absent where a rule expects them, the result
// degrades to the whole-file digest. The caller cannot cheaply distinguish
// "wrong rule" from "corrupt file", so a degraded match beats an error.
func Identify(consoleID int, filename string, data []byte) (string, error) {
	r, ok := defaultRules[consoleID]
	if !ok {
		r = rule{method: methodWholeFile}
	}

	if r.method == methodFilename {
		if filename == "" {
			return "", ErrEmptyContent
		}
		return digest([]byte(normalizeFilename(filename))), nil
	}

	if len(data) == 0 {
		return "", ErrEmptyContent
	}

	switch r.method {
	case methodMagicSkip:
		for _, magic := range r.magics {
			if bytes.HasPrefix(data, magic) && len(data) > r.headerLen {
				return digest(data[r.headerLen:]), nil
			}
		}
		return digest(data), nil

	case methodModuloSkip:
		if len(data) > r.headerLen && (len(data)-r.headerLen)%r.blockSize == r.remainder {
			return digest(data[r.headerLen:]), nil
		}
		return digest(data), nil

	case methodParitySkip:
		if len(data)%2 == 1 && len(data) > r.headerLen {
			return digest(data[r.headerLen:]), nil
		}
		return digest(data), nil

	case methodByteSwap:
		for _, magic := range r.magics {
			if bytes.HasPrefix(data, magic) {
				return digest(swapPairs(data)), nil
			}
		}
		return digest(data), nil

	case methodTextNormalize:
		return digest([]byte(normalizeHexText(data))), nil

	case methodBootExecutable:
		if region, ok := bootExecutableRegion(data); ok {
			return digest(region), nil
		}
		return digest(data), nil

	case methodDiscHeader:
		if region, ok := discHeaderRegion(data, r); ok {
			return digest(region), nil
		}
		return digest(data), nil

	default:
		return digest(data), nil
	}
}

// Part is one file of a multi-part (multi-disk) title.
type Part struct {
	Filename string
	Data     []byte
}

// IdentifyParts hashes each part of a multi-file title independently with
// the whole-file rule. The caller queries per-part catalog entries.
func IdentifyParts(parts []Part) (map[string]string, error) {
	hashes := make(map[string]string, len(parts))
	for _, part := range parts {
		if len(part.Data) == 0 {
			return nil, ErrEmptyContent
		}
		hashes[part.Filename] = digest(part.Data)
	}
	return hashes, nil
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// swapPairs swaps adjacent byte pairs across the whole content. A trailing
// odd byte is left in place.
func swapPairs(data []byte) []byte {
	swapped := make([]byte, len(data))
	copy(swapped, data)
	for i := 0; i+1 < len(swapped); i += 2 {
		swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
	}
	return swapped
}

// normalizeFilename lower-cases and strips the extension, so "Asteroids.ZIP"
// and "asteroids.7z" share an identity.
func normalizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// normalizeHexText strips all whitespace and lower-cases hex digits so
// semantically identical text encodings collide.
func normalizeHexText(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// discHeaderRegion extracts the header region of a disc image whose identity
// is its boot sector, handling both cooked (2048-byte) and raw (2352-byte)
// sector layouts.
func discHeaderRegion(data []byte, r rule) ([]byte, bool) {
	for _, offset := range []int{0, rawSectorHeaderLen} {
		if len(data) < offset+r.region {
			continue
		}
		for _, magic := range r.magics {
			if bytes.HasPrefix(data[offset:], magic) {
				return data[offset : offset+r.region], true
			}
		}
	}
	return nil, false
}
