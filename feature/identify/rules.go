package identify

// Console identifiers matching the remote catalog's platform numbering.
// Only platforms with non-default hashing rules need an entry in the rule
// table; everything else hashes the whole file.
const (
	ConsoleMegaDrive         = 1
	ConsoleNintendo64        = 2
	ConsoleSNES              = 3
	ConsoleGameBoy           = 4
	ConsoleNES               = 7
	ConsoleSegaCD            = 9
	ConsolePlayStation       = 12
	ConsoleLynx              = 13
	ConsoleIntellivision     = 15
	ConsoleArcade            = 27
	ConsoleAtari7800         = 51
	ConsoleArduboy           = 71
	ConsoleFamicomDiskSystem = 76
	ConsolePCEngineCD        = 78
)

type method int

const (
	methodWholeFile method = iota
	methodMagicSkip
	methodModuloSkip
	methodParitySkip
	methodByteSwap
	methodFilename
	methodTextNormalize
	methodBootExecutable
	methodDiscHeader
)

// rule describes how one platform derives its canonical hash.
type rule struct {
	method method
	// magics are header prefixes. For methodMagicSkip a match means a
	// dump-tool header is present and headerLen bytes are skipped. For
	// methodByteSwap a match means the image is pair-swapped.
	magics [][]byte
	// headerLen is the header length to skip when the rule decides one is
	// present.
	headerLen int
	// blockSize and remainder drive methodModuloSkip: the header is inferred
	// from size alignment, (len - headerLen) mod blockSize == remainder.
	blockSize int
	remainder int
	// region is the byte count hashed by methodDiscHeader.
	region int
}

// defaultRules is the per-platform rule table. Dump-tool headers must not
// affect identity, which is why most non-default rules exist.
var defaultRules = map[int]rule{
	// iNES / FDS dumps carry an optional 16-byte tool header.
	ConsoleNES: {
		method:    methodMagicSkip,
		magics:    [][]byte{[]byte("NES\x1a")},
		headerLen: 16,
	},
	ConsoleFamicomDiskSystem: {
		method:    methodMagicSkip,
		magics:    [][]byte{[]byte("FDS\x1a")},
		headerLen: 16,
	},
	// Lynx dumps may carry a 64-byte LYNX header.
	ConsoleLynx: {
		method:    methodMagicSkip,
		magics:    [][]byte{[]byte("LYNX")},
		headerLen: 64,
	},
	// SNES copier headers are 512 bytes and have no magic; presence is
	// inferred from size alignment against the 32 KiB bank size.
	ConsoleSNES: {
		method:    methodModuloSkip,
		headerLen: 512,
		blockSize: 32768,
		remainder: 0,
	},
	// Atari 7800 images are an even number of bytes; an odd count means a
	// 128-byte tool header was prepended.
	ConsoleAtari7800: {
		method:    methodParitySkip,
		headerLen: 128,
	},
	// Intellivision uses 16-bit words; same parity inference, 4-byte header.
	ConsoleIntellivision: {
		method:    methodParitySkip,
		headerLen: 4,
	},
	// N64 images dumped on little-endian tools are pair-swapped relative to
	// the catalog's big-endian convention.
	ConsoleNintendo64: {
		method: methodByteSwap,
		magics: [][]byte{{0x37, 0x80, 0x40, 0x12}},
	},
	// Arcade sets have no payload identity; the normalized set name is the
	// identity.
	ConsoleArcade: {
		method: methodFilename,
	},
	// Arduboy sketches are hex text; semantically identical encodings must
	// collide regardless of whitespace, line endings, or hex-digit case.
	ConsoleArduboy: {
		method: methodTextNormalize,
	},
	// PlayStation identity is the boot executable named by SYSTEM.CNF, not
	// the raw container.
	ConsolePlayStation: {
		method: methodBootExecutable,
	},
	ConsolePCEngineCD: {
		method: methodBootExecutable,
	},
	// Sega CD identity is the disc header region of the boot sector.
	ConsoleSegaCD: {
		method: methodDiscHeader,
		magics: [][]byte{[]byte("SEGADISCSYSTEM")},
		region: 512,
	},
}
