package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the persistent key-value home of the option set. The relay only
// ever loads and saves whole Settings values.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// FileStore persists settings as a YAML document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the settings file. A missing file yields defaults so a fresh
// deployment starts with everything disabled but trackable defaults intact.
func (f *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s.Normalize(), nil
}

// Save writes the settings file, creating parent directories as needed.
func (f *FileStore) Save(s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(f.path, data, 0o600)
}

// MemoryStore keeps settings in memory; used by tests and by hosts that own
// settings persistence themselves.
type MemoryStore struct {
	mu       sync.Mutex
	settings Settings
}

// NewMemoryStore seeds an in-memory store with the given settings.
func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{settings: s.Normalize()}
}

func (m *MemoryStore) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Normalize()
	return nil
}
