package scanner

import (
	"context"
	"errors"
	"fmt"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers bounds the number of files hashed in parallel.
	Workers    int
	IgnoreList []string
	Cache      *HashCache
}

// Scanner walks a directory tree and produces one entry per file and folder
// below the root, hashing regular files with SHA-256.
type Scanner struct {
	workers int
	ignore  *ignoreMatcher
	cache   *HashCache
}

func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

func New(opts Options) *Scanner {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	return &Scanner{
		workers: workers,
		ignore:  newIgnoreMatcher(opts.IgnoreList),
		cache:   opts.Cache,
	}
}

type fileJob struct {
	path    string
	rel     string
	info    fs.FileInfo
	symlink bool
}

// Scan enumerates root. Unreadable entries are logged and skipped; only a
// failure on the root itself or cancellation ends the stream with an error.
// A missing root yields an empty stream.
func (s *Scanner) Scan(ctx context.Context, root string) *Stream {
	out := make(chan model.Entry, 256)
	stream := newStream(out)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		close(out)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Log.Debug("scan root does not exist",
				zap.String("root", root))
			stream.finish(nil)
		case err != nil:
			stream.finish(fmt.Errorf("failed to stat scan root: %w", err))
		default:
			stream.finish(fmt.Errorf("scan root %s is not a directory", root))
		}
		return stream
	}

	go s.run(ctx, root, out, stream)
	return stream
}

func (s *Scanner) run(ctx context.Context, root string, out chan<- model.Entry, stream *Stream) {
	start := time.Now()
	var emitted atomic.Int64

	emit := func(e model.Entry) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- e:
			emitted.Add(1)
			return true
		case <-ctx.Done():
			return false
		}
	}

	jobs := make(chan fileJob, s.workers*2)

	var g errgroup.Group
	for range s.workers {
		g.Go(func() error {
			for job := range jobs {
				entry, ok := s.fileEntry(ctx, job)
				if !ok {
					continue
				}
				emit(entry)
			}
			return nil
		})
	}

	walkErr := s.walk(ctx, root, func(path, rel string, d fs.DirEntry, info fs.FileInfo) error {
		switch {
		case d.IsDir():
			entry := model.NewFolderEntry(path, info.ModTime().UTC()).WithRelPath(rel)
			if !emit(entry) {
				return ctx.Err()
			}
		case d.Type()&fs.ModeSymlink != 0, d.Type().IsRegular():
			job := fileJob{
				path:    path,
				rel:     rel,
				info:    info,
				symlink: d.Type()&fs.ModeSymlink != 0,
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			logger.Log.Debug("skipping irregular file",
				zap.String("path", path))
		}
		return nil
	})

	close(jobs)
	_ = g.Wait()
	close(out)

	if walkErr == nil {
		walkErr = ctx.Err()
	}

	logger.Log.Debug("scan finished",
		zap.String("root", root),
		zap.Int64("entries", emitted.Load()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(walkErr))

	stream.finish(walkErr)
}

// walk calls fn for every non-ignored entry below root with its lstat info.
// A root that is itself a symlink is followed once; links below it are not.
func (s *Scanner) walk(ctx context.Context, root string, fn func(path, rel string, d fs.DirEntry, info fs.FileInfo) error) error {
	root = resolveRoot(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == root {
				return fmt.Errorf("failed to read scan root: %w", walkErr)
			}

			logger.Log.Warn("failed to read entry, skipping",
				zap.String("path", path),
				zap.Error(walkErr))

			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			logger.Log.Warn("failed to relativize entry, skipping",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.ignore.match(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Log.Warn("failed to stat entry, skipping",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		return fn(path, rel, d, info)
	})
}

func (s *Scanner) fileEntry(ctx context.Context, job fileJob) (model.Entry, bool) {
	size := job.info.Size()
	modTime := job.info.ModTime().UTC()

	if hash, ok := s.cache.Lookup(job.path, size, modTime); ok {
		return model.NewFileEntry(job.path, size, modTime, hash).WithRelPath(job.rel), true
	}

	var (
		hash string
		err  error
	)
	if job.symlink {
		hash, err = linkChecksum(job.path)
	} else {
		hash, err = checksum(ctx, job.path)
	}

	switch {
	case err == nil:
		s.cache.Store(job.path, size, modTime, hash)
	case ctx.Err() != nil:
		return model.Entry{}, false
	case errors.Is(err, fs.ErrNotExist):
		logger.Log.Warn("file removed during scan, skipping",
			zap.String("path", job.path))
		return model.Entry{}, false
	default:
		logger.Log.Warn("failed to hash file, keeping entry without hash",
			zap.String("path", job.path),
			zap.Error(err))
		hash = ""
	}

	return model.NewFileEntry(job.path, size, modTime, hash).WithRelPath(job.rel), true
}

// Count returns the number of entries Scan would produce for root, without
// hashing anything.
func (s *Scanner) Count(ctx context.Context, root string) (int, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	count := 0
	err := s.walk(ctx, root, func(_, _ string, d fs.DirEntry, _ fs.FileInfo) error {
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Ignored reports whether the slash separated path below the root is excluded
// by the ignore list.
func (s *Scanner) Ignored(rel string) bool {
	return s.ignore.match(rel)
}

func resolveRoot(root string) string {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return root
	}
	return resolved
}
