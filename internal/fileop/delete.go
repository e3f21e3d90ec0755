package fileop

import (
	"errors"
	"fmt"
	"foldersync/internal/logger"
	"io/fs"
	"os"
	"syscall"

	"go.uber.org/zap"
)

func (d *Dispatcher) delete(dst string) error {
	info, err := os.Lstat(dst)
	// ENOTDIR: an ancestor has already been replaced by a file
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		logger.Log.Info("nothing to delete",
			zap.String("path", dst))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		logger.Log.Info("folder deleted",
			zap.String("path", dst))
		return nil
	}

	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	logger.Log.Info("file deleted",
		zap.String("path", dst))
	return nil
}
