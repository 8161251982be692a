package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StoreKeyAPIKey is the well-known preference key for the API credential.
const StoreKeyAPIKey = "api_key"

const storeFileMode = 0o600

// Store is a persisted key/value preference store, the equivalent of browser
// local storage: a single JSON file holding the API credential and any other
// local preferences. Reads and writes are synchronous.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewStore opens (or lazily creates) the preference file at path.
// A missing file is not an error; it appears on first Set.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preference store: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("corrupt preference store %s: %w", path, err)
	}
	return s, nil
}

// DefaultStorePath returns the preference file location under the user
// config directory.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "outfitmatcher", "preferences.json"), nil
}

// Get retrieves a stored value. Returns an empty string when absent.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores a value and persists the whole file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

// ClearAll removes every stored preference and deletes the backing file.
// This is deliberately a blunt instrument: the credential and all other
// preferences go together.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create preference dir: %w", err)
	}
	return os.WriteFile(s.path, data, storeFileMode)
}
