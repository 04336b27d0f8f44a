package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the credentials file written by FileBackend.
const FileName = "credentials.json"

const lockRetryDelay = 25 * time.Millisecond

// FileBackend stores entries in a 0600 JSON file. Every read-modify-write
// holds an exclusive lock on a sibling lock file so two gig processes never
// interleave writes.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (f *FileBackend) Name() string { return BackendFile }

// Path returns the credentials file path.
func (f *FileBackend) Path() string {
	return filepath.Join(f.dir, FileName)
}

func (f *FileBackend) lockPath() string {
	return filepath.Join(f.dir, "."+FileName+".lock")
}

func (f *FileBackend) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := f.withLock(ctx, func(all map[string]string) (bool, error) {
		v, ok := all[key]
		if !ok {
			return false, ErrNotFound
		}
		value = v
		return false, nil
	})
	return value, err
}

func (f *FileBackend) Set(ctx context.Context, key, value string) error {
	return f.withLock(ctx, func(all map[string]string) (bool, error) {
		all[key] = value
		return true, nil
	})
}

func (f *FileBackend) Delete(ctx context.Context, keys ...string) error {
	return f.withLock(ctx, func(all map[string]string) (bool, error) {
		changed := false
		for _, k := range keys {
			if _, ok := all[k]; ok {
				delete(all, k)
				changed = true
			}
		}
		return changed, nil
	})
}

// withLock loads the file under an exclusive lock, runs fn, and writes the
// map back when fn reports a change.
func (f *FileBackend) withLock(ctx context.Context, fn func(map[string]string) (bool, error)) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}

	lock := flock.New(f.lockPath())
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.lockPath(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", f.lockPath())
	}
	defer func() { _ = lock.Unlock() }()

	all, err := f.load()
	if err != nil {
		return err
	}
	changed, err := fn(all)
	if err != nil || !changed {
		return err
	}
	return f.save(all)
}

func (f *FileBackend) load() (map[string]string, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]string)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", f.Path(), err)
	}
	return all, nil
}

func (f *FileBackend) save(all map[string]string) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write with randomized temp file name
	tmpFile, err := os.CreateTemp(f.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when destination exists.
	destPath := f.Path()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
