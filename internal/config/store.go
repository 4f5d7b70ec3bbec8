package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Store is the persisted key/value settings file. It uses dotenv syntax so
// the same file can be sourced by a shell.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. The file is not touched until
// Read or Write is called.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored values. A missing file reads as empty.
func (s *Store) Read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Set stores key=value, keeping every other stored entry. Unknown keys are
// rejected so typos do not silently persist.
func (s *Store) Set(key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown settings key %q", key)
	}
	if key == KeyFilePath {
		return fmt.Errorf("%s cannot be stored in the settings file it locates", KeyFilePath)
	}

	values, err := s.Read()
	if err != nil {
		return err
	}
	if value == "" {
		delete(values, key)
	} else {
		values[key] = value
	}
	return s.Write(values)
}

// Write replaces the store contents with values.
func (s *Store) Write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := godotenv.Write(values, s.path); err != nil {
		return fmt.Errorf("failed to write settings store: %w", err)
	}
	// The store carries credentials.
	return os.Chmod(s.path, 0o600)
}

// Render returns the store contents in dotenv syntax with keys sorted.
func Render(values map[string]string) (string, error) {
	return godotenv.Marshal(values)
}
