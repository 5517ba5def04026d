package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const maxRecentRepos = 10

// Preferences is the persisted user-preference blob. It mirrors what the
// dashboard keeps in browser storage: display settings, a bounded
// recent-repository list, and free-text notes keyed by repository.
type Preferences struct {
	Theme        string            `json:"theme"`
	ReposPerPage int               `json:"repos_per_page"`
	RecentRepos  []string          `json:"recent_repos"`
	Notes        map[string]string `json:"notes"`
}

// DefaultPreferences returns the settings used when nothing is persisted
// or the persisted blob is unreadable
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:        "light",
		ReposPerPage: 25,
		RecentRepos:  []string{},
		Notes:        map[string]string{},
	}
}

// Store persists Preferences as a JSON file. Loading never fails: a missing
// or corrupt file silently falls back to defaults. Every mutation is written
// through to disk.
type Store struct {
	logger *zap.Logger
	path   string

	mu    sync.Mutex
	prefs Preferences
}

// NewStore creates a preferences store backed by the given file path and
// loads whatever is currently persisted
func NewStore(logger *zap.Logger, path string) *Store {
	s := &Store{
		logger: logger.Named("prefs"),
		path:   path,
	}
	s.prefs = s.load()
	return s
}

// Get returns a copy of the current preferences
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPreferences(s.prefs)
}

// Set replaces the preferences and persists them
func (s *Store) Set(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs = copyPreferences(prefs)
	return s.save()
}

// TouchRecent moves the repository to the front of the recent list,
// de-duplicating and keeping the list bounded
func (s *Store) TouchRecent(fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := []string{fullName}
	for _, name := range s.prefs.RecentRepos {
		if name != fullName {
			recent = append(recent, name)
		}
	}
	if len(recent) > maxRecentRepos {
		recent = recent[:maxRecentRepos]
	}
	s.prefs.RecentRepos = recent
	return s.save()
}

// SetNote stores a free-text note for a repository. An empty note deletes
// the entry.
func (s *Store) SetNote(fullName, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs.Notes == nil {
		s.prefs.Notes = map[string]string{}
	}
	if note == "" {
		delete(s.prefs.Notes, fullName)
	} else {
		s.prefs.Notes[fullName] = note
	}
	return s.save()
}

// Export serializes the current preferences blob
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export preferences: %w", err)
	}
	return data, nil
}

// Import replaces the preferences from a serialized blob and persists them
func (s *Store) Import(data []byte) error {
	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("failed to import preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = normalize(prefs)
	return s.save()
}

// load reads the persisted blob, falling back to defaults on any failure
func (s *Store) load() Preferences {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read preferences, using defaults",
				zap.String("path", s.path),
				zap.Error(err))
		}
		return DefaultPreferences()
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		s.logger.Warn("Corrupt preferences file, using defaults",
			zap.String("path", s.path),
			zap.Error(err))
		return DefaultPreferences()
	}
	return normalize(prefs)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// normalize fills nil collections so callers never see nil maps or slices
func normalize(prefs Preferences) Preferences {
	def := DefaultPreferences()
	if prefs.Theme == "" {
		prefs.Theme = def.Theme
	}
	if prefs.ReposPerPage <= 0 {
		prefs.ReposPerPage = def.ReposPerPage
	}
	if prefs.RecentRepos == nil {
		prefs.RecentRepos = []string{}
	}
	if prefs.Notes == nil {
		prefs.Notes = map[string]string{}
	}
	return prefs
}

func copyPreferences(prefs Preferences) Preferences {
	out := prefs
	out.RecentRepos = append([]string{}, prefs.RecentRepos...)
	out.Notes = make(map[string]string, len(prefs.Notes))
	for k, v := range prefs.Notes {
		out.Notes[k] = v
	}
	return out
}
