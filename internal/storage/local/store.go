// Package local stores JSON records as files, one file per record, grouped
// into collection directories.
package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store provides thread-safe JSON file storage. Writes go to a temporary
// file that is renamed into place, so readers never see a partial record.
type Store struct {
	basePath string
	mu       sync.RWMutex
}

// NewStore creates a new local JSON store
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Path returns the root directory of the store
func (s *Store) Path() string {
	return s.basePath
}

// Save persists data as collection/id.json
func (s *Store) Save(collection, id string, data any) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.basePath, collection), id, data)
}

// Load reads collection/id.json into data
func (s *Store) Load(collection, id string, data any) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readJSON(filepath.Join(s.basePath, collection, id+".json"), data)
}

// Delete removes a record
func (s *Store) Delete(collection, id string) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.basePath, collection, id+".json")); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// List returns all record ids in a collection
func (s *Store) List(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listJSON(filepath.Join(s.basePath, collection))
}

// Exists checks if a record exists
func (s *Store) Exists(collection, id string) bool {
	if validName(id) != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(filepath.Join(s.basePath, collection, id+".json"))
	return err == nil
}

// SaveDir saves a record into a subdirectory owned by collection/id
func (s *Store) SaveDir(collection, id, subdir, filename string, data any) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.basePath, collection, id, subdir), filename, data)
}

// LoadDir loads a record from a subdirectory owned by collection/id
func (s *Store) LoadDir(collection, id, subdir, filename string, data any) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readJSON(filepath.Join(s.basePath, collection, id, subdir, filename+".json"), data)
}

// ListDir lists the records in a subdirectory owned by collection/id
func (s *Store) ListDir(collection, id, subdir string) ([]string, error) {
	if err := validName(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listJSON(filepath.Join(s.basePath, collection, id, subdir))
}

func validName(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func writeJSON(dir, name string, data any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		tmp.Close()
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name+".json")); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func readJSON(path string, data any) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(data); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if id, ok := strings.CutSuffix(name, ".json"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteDir removes the subdirectories kept for a record
func (s *Store) DeleteDir(collection, id string) error {
	if err := validName(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.basePath, collection, id)); err != nil {
		return fmt.Errorf("remove directory: %w", err)
	}
	return nil
}
