package storage

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "secureguard"
)

// Keyring stores values in the OS keychain/credential manager
type Keyring struct {
	origin string
}

// NewKeyring returns a keyring backend scoped to origin
func NewKeyring(origin string) *Keyring {
	return &Keyring{origin: origin}
}

// keyringKey returns a unique item name per origin and key
func (k *Keyring) keyringKey(key string) string {
	return fmt.Sprintf("%s|%s", k.origin, key)
}

// Get retrieves the value from the OS keychain/credential manager
func (k *Keyring) Get(key string) (string, error) {
	value, err := keyring.Get(keyringService, k.keyringKey(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, nil
}

// Set persists the value securely in the OS keychain/credential manager
func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(keyringService, k.keyringKey(key), value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value from the OS keychain/credential manager
func (k *Keyring) Remove(key string) error {
	if err := keyring.Delete(keyringService, k.keyringKey(key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
