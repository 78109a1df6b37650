package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		key  string
		want Mode
		ok   bool
	}{
		{"quick", ModeQuick, true},
		{"recent", ModeQuick, true},
		{"full", ModeFull, true},
		{"installed", ModeInstalled, true},
		{"favorites", ModeFavorites, true},
		{"selected", ModeSelected, true},
		{"single", ModeSingle, true},
		{"missing", ModeMissing, true},
		{" Full ", ModeFull, true},
		{"QUICK", ModeQuick, true},
		{"bogus", ModeUnspecified, false},
		{"", ModeUnspecified, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			mode, ok := ParseMode(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "quick", ModeQuick.String())
	assert.Equal(t, "unspecified", ModeUnspecified.String())
	assert.Equal(t, "other", ModeOther.String())

	// Every parseable key round-trips through String back to the same mode.
	for key, mode := range modeKeys {
		parsed, ok := ParseMode(mode.String())
		assert.True(t, ok, key)
		assert.Equal(t, mode, parsed)
	}
}
