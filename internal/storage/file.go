package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileContents is the on-disk layout: origin -> key -> value
type fileContents map[string]map[string]string

// File stores values in a JSON file, e.g. ~/.config/secureguard/storage.json
type File struct {
	path   string
	origin string
	mu     sync.Mutex
}

// NewFile returns a file backend scoped to origin
func NewFile(path, origin string) *File {
	return &File{path: path, origin: origin}
}

// Path returns the location of the storage file
func (f *File) Path() string {
	return f.path
}

func (f *File) load() (fileContents, error) {
	// If the file doesn't exist, start empty
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return fileContents{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	contents := fileContents{}
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse storage file: %w", err)
	}
	return contents, nil
}

func (f *File) save(contents fileContents) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage file: %w", err)
	}

	// Write to a temp file and rename so readers never see a torn file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// Get reads a key for this origin
func (f *File) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.load()
	if err != nil {
		return "", err
	}

	value, ok := contents[f.origin][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set writes a key for this origin
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.load()
	if err != nil {
		return err
	}

	if contents[f.origin] == nil {
		contents[f.origin] = map[string]string{}
	}
	contents[f.origin][key] = value
	return f.save(contents)
}

// Remove deletes a key for this origin
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.load()
	if err != nil {
		return err
	}

	entries, ok := contents[f.origin]
	if !ok {
		return nil
	}
	if _, ok := entries[key]; !ok {
		return nil
	}

	delete(entries, key)
	if len(entries) == 0 {
		delete(contents, f.origin)
	}
	return f.save(contents)
}
