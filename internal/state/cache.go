package state

import (
	"bytes"
	"errors"
	"fmt"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"foldersync/internal/util"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const DefaultPath = ".cache/folder_state.json"

// Cache is the single slot store for the last applied fingerprint. Readers
// and writers in other processes are kept apart with a lock file next to it.
type Cache struct {
	path string
	lock *flock.Flock
}

func NewCache(path string) *Cache {
	if path == "" {
		path = DefaultPath
	}

	return &Cache{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (c *Cache) Path() string {
	return c.path
}

// Get returns the stored fingerprint. A missing or unreadable record is
// reported as absent.
func (c *Cache) Get() (model.Fingerprint, bool) {
	if _, err := os.Stat(c.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Log.Warn("failed to stat fingerprint cache",
				zap.String("path", c.path),
				zap.Error(err))
		}
		return model.Fingerprint{}, false
	}

	if err := c.lock.RLock(); err != nil {
		logger.Log.Warn("failed to lock fingerprint cache",
			zap.String("path", c.path),
			zap.Error(err))
		return model.Fingerprint{}, false
	}
	defer func() { _ = c.lock.Unlock() }()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Log.Warn("failed to read fingerprint cache",
				zap.String("path", c.path),
				zap.Error(err))
		}
		return model.Fingerprint{}, false
	}

	var fp model.Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		logger.Log.Warn("fingerprint cache is corrupt, treating as cold start",
			zap.String("path", c.path),
			zap.Error(err))
		return model.Fingerprint{}, false
	}

	if fp.AggregateHash == "" {
		logger.Log.Warn("fingerprint cache has no aggregate hash, treating as cold start",
			zap.String("path", c.path))
		return model.Fingerprint{}, false
	}

	return fp, true
}

func (c *Cache) Set(fp model.Fingerprint) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock fingerprint cache: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	if err := util.AtomicWrite(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write fingerprint cache: %w", err)
	}

	return nil
}

// Flush removes the stored fingerprint so the next cycle diffs both trees.
func (c *Cache) Flush() error {
	if _, err := os.Stat(filepath.Dir(c.path)); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock fingerprint cache: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	return util.RemoveIfExists(c.path)
}
