package library

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileEntry is the JSON shape of one library export row.
type fileEntry struct {
	GameID     string     `json:"game_id"`
	Name       string     `json:"name"`
	Installed  bool       `json:"installed"`
	Favorite   bool       `json:"favorite"`
	Hidden     bool       `json:"hidden"`
	LastPlayed *time.Time `json:"last_played"`
}

// LoadFile reads a library export (a JSON array of entries) into a Static
// metadata source.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library file: %w", err)
	}

	var rows []fileEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse library file: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			GameID:     row.GameID,
			Name:       row.Name,
			Installed:  row.Installed,
			Favorite:   row.Favorite,
			Hidden:     row.Hidden,
			LastPlayed: row.LastPlayed,
		})
	}
	static := NewStatic(entries...)
	static.source = "file:" + path
	return static, nil
}
