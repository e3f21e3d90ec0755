package fileop

import (
	"context"
	"errors"
	"fmt"
	"foldersync/internal/logger"
	"foldersync/internal/util"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func (d *Dispatcher) createFile(ctx context.Context, src, dst string) error {
	start := time.Now()

	info, err := statSource(src)
	if err != nil {
		return err
	}

	if err := util.EnsureParent(dst); err != nil {
		return err
	}

	if existing, err := os.Lstat(dst); err == nil {
		switch {
		case existing.IsDir():
			if err := os.RemoveAll(dst); err != nil {
				return fmt.Errorf("failed to replace folder %s with a file: %w", dst, err)
			}
		case !existing.Mode().IsRegular():
			if err := os.Remove(dst); err != nil {
				return fmt.Errorf("failed to replace %s with a file: %w", dst, err)
			}
		}
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		return copySymlink(src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open src: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(in)

	n, err := writeExclusive(ctx, dst, in)
	if err != nil {
		return err
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set modification time: %w", err)
	}

	elapsed := time.Since(start)
	logger.Log.Info("file created",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("size", humanize.Bytes(uint64(n))),
		zap.String("throughput", throughput(n, elapsed)),
		zap.Duration("elapsed", elapsed))

	return nil
}

func (d *Dispatcher) createFolder(dst string) error {
	info, err := os.Lstat(dst)
	switch {
	case err == nil && info.IsDir():
		logger.Log.Debug("folder already exists",
			zap.String("path", dst))
		return nil
	case err == nil:
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("failed to replace file %s with a folder: %w", dst, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat folder: %w", err)
	}

	if err := util.EnsureParent(dst); err != nil {
		return err
	}
	if err := os.Mkdir(dst, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	logger.Log.Info("folder created",
		zap.String("path", dst))
	return nil
}

// writeExclusive replaces the content of dst with r while holding an
// exclusive lock on dst.
func writeExclusive(ctx context.Context, dst string, r io.Reader) (int64, error) {
	out, err := util.OpenExclusive(dst, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open dst: %w", err)
	}

	if err := out.Truncate(0); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("failed to truncate dst: %w", err)
	}

	n, err := util.CopyContext(ctx, out, r)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("failed to copy: %w", err)
	}

	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close dst: %w", err)
	}

	return n, nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("failed to read link: %w", err)
	}

	if err := util.RemoveIfExists(dst); err != nil {
		return err
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	logger.Log.Info("link copied",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("target", target))
	return nil
}

func statSource(src string) (fs.FileInfo, error) {
	info, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSource, src)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat src: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a folder", src)
	}
	return info, nil
}

func throughput(n int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}
	return humanize.Bytes(uint64(float64(n)/elapsed.Seconds())) + "/s"
}
