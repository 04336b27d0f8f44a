package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key has no stored value.
var ErrNotFound = errors.New("session: key not found")

// Backend is durable key-value storage for session entries.
// Keys arrive already namespaced by origin.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend names accepted by Open.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)
