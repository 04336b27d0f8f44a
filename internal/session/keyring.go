package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "gig"

// KeyringBackend stores entries in the system keychain.
type KeyringBackend struct{}

// KeyringAvailable reports whether the system keyring accepts writes.
func KeyringAvailable() bool {
	testKey := "gig::probe"
	if err := keyring.Set(serviceName, testKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey) // Best-effort cleanup
	return true
}

func (KeyringBackend) Name() string { return BackendKeyring }

func (KeyringBackend) Get(_ context.Context, key string) (string, error) {
	v, err := keyring.Get(serviceName, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring read %s: %w", key, err)
	}
	return v, nil
}

func (KeyringBackend) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(serviceName, key, value); err != nil {
		return fmt.Errorf("keyring write %s: %w", key, err)
	}
	return nil
}

func (KeyringBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if err := keyring.Delete(serviceName, k); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", k, err)
		}
	}
	return nil
}
