package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Options selects and configures the session backend.
type Options struct {
	// Backend is one of keyring, file, redis, memory. Empty means keyring
	// when available, file otherwise.
	Backend string

	// Dir holds the credentials file for the file backend.
	Dir string

	// RedisURL is required for the redis backend.
	RedisURL string

	// Origin scopes the stored keys.
	Origin string

	// Warnings receives fallback notices. Defaults to stderr.
	Warnings io.Writer
}

// Open creates the store described by opts.
func Open(opts Options) (*Store, error) {
	warn := opts.Warnings
	if warn == nil {
		warn = os.Stderr
	}

	switch opts.Backend {
	case "", BackendKeyring:
		if os.Getenv("GIG_NO_KEYRING") != "" {
			return NewStore(NewFileBackend(opts.Dir), opts.Origin), nil
		}
		if KeyringAvailable() {
			return NewStore(KeyringBackend{}, opts.Origin), nil
		}
		fmt.Fprintf(warn, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
			filepath.Join(opts.Dir, FileName))
		return NewStore(NewFileBackend(opts.Dir), opts.Origin), nil
	case BackendFile:
		return NewStore(NewFileBackend(opts.Dir), opts.Origin), nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("session backend redis requires redis_url")
		}
		backend, err := NewRedisBackend(opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewStore(backend, opts.Origin), nil
	case BackendMemory:
		return NewStore(NewMemoryBackend(), opts.Origin), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}
}
