package refresh

import "strings"

// Mode is a named scan mode selecting which titles a refresh batch targets.
// ModeOther carries a raw key for modes not present as a typed value, the
// forward-compatibility path for callers driven by stored strings.
type Mode int

const (
	// ModeUnspecified means the request carries no mode; resolution falls
	// through to the quick/recent default.
	ModeUnspecified Mode = iota
	// ModeQuick rescans the N most recently played titles.
	ModeQuick
	// ModeFull rescans every cached title.
	ModeFull
	// ModeInstalled rescans titles currently installed per library metadata.
	ModeInstalled
	// ModeFavorites rescans titles flagged favorite in the library.
	ModeFavorites
	// ModeSelected rescans the request's selection id list.
	ModeSelected
	// ModeSingle rescans the request's single game id.
	ModeSingle
	// ModeMissing rescans titles with no cached achievement data yet.
	ModeMissing
	// ModeOther defers to the request's raw mode key.
	ModeOther
)

var modeKeys = map[string]Mode{
	"quick":     ModeQuick,
	"recent":    ModeQuick,
	"full":      ModeFull,
	"installed": ModeInstalled,
	"favorites": ModeFavorites,
	"selected":  ModeSelected,
	"single":    ModeSingle,
	"missing":   ModeMissing,
}

// ParseMode maps a raw mode key to its typed value. Unknown keys return
// (ModeUnspecified, false); resolution then applies the quick default.
func ParseMode(key string) (Mode, bool) {
	mode, ok := modeKeys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return ModeUnspecified, false
	}
	return mode, true
}

// String returns the canonical key for a mode.
func (m Mode) String() string {
	switch m {
	case ModeQuick:
		return "quick"
	case ModeFull:
		return "full"
	case ModeInstalled:
		return "installed"
	case ModeFavorites:
		return "favorites"
	case ModeSelected:
		return "selected"
	case ModeSingle:
		return "single"
	case ModeMissing:
		return "missing"
	case ModeOther:
		return "other"
	default:
		return "unspecified"
	}
}
