// Package storage provides the durable string key/value stores that back the
// client session, the equivalent of a browser's localStorage for one origin.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName = "secureguard"
)

// ErrNotFound is returned by Get when the key is not stored
var ErrNotFound = errors.New("key not found")

// Backend is a string key/value store scoped to one origin
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
}

// Options selects and configures a backend
type Options struct {
	Kind   string // keyring, file, sqlite, memory
	Path   string // file or sqlite location; empty = user config dir
	Origin string // API base URL the stored values belong to
}

// Open creates the backend described by opts
func Open(opts Options) (Backend, error) {
	origin := normalizeOrigin(opts.Origin)

	switch opts.Kind {
	case "keyring", "":
		return NewKeyring(origin), nil
	case "file":
		path := opts.Path
		if path == "" {
			p, err := DefaultPath("storage.json")
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFile(path, origin), nil
	case "sqlite":
		path := opts.Path
		if path == "" {
			p, err := DefaultPath("storage.sqlite")
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path, origin)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}

// DefaultPath returns a file path inside ~/.config/secureguard
func DefaultPath(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", configDirName, name), nil
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(origin), "/")
}
