package library

import "time"

// Entry is the read-only view of one game in the host application's library.
type Entry struct {
	GameID     string
	Name       string
	Installed  bool
	Favorite   bool
	Hidden     bool
	LastPlayed *time.Time
}

// Metadata resolves library state for scan-mode predicates. Implementations
// wrap the host application's library database; the sync engine only reads.
type Metadata interface {
	// Entry returns the library entry for a game id.
	Entry(gameID string) (Entry, bool)
	// Entries returns all library entries.
	Entries() []Entry
	// Source names where the metadata came from, stored on cached titles so
	// stale display names can be traced back to their origin.
	Source() string
}

// Static is an in-memory Metadata, used by tests and by deployments without
// a host library.
type Static struct {
	ByID map[string]Entry

	source string
}

// NewStatic builds a Static metadata source from a list of entries.
func NewStatic(entries ...Entry) *Static {
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byID[e.GameID] = e
	}
	return &Static{ByID: byID}
}

func (s *Static) Entry(gameID string) (Entry, bool) {
	e, ok := s.ByID[gameID]
	return e, ok
}

func (s *Static) Entries() []Entry {
	entries := make([]Entry, 0, len(s.ByID))
	for _, e := range s.ByID {
		entries = append(entries, e)
	}
	return entries
}

func (s *Static) Source() string {
	if s.source == "" {
		return "static"
	}
	return s.source
}
