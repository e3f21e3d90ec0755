package lockdiag

import (
	"context"
	"fmt"
	"foldersync/internal/logger"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

type Holder struct {
	PID  int32
	Name string
}

func (h Holder) String() string {
	return fmt.Sprintf("%s(%d)", h.Name, h.PID)
}

// Holders lists the processes that have path open. Processes that cannot be
// inspected are skipped, so the result is best effort.
func Holders(ctx context.Context, path string) ([]Holder, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var holders []Holder
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return holders, err
		}

		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}

		for _, f := range files {
			if filepath.Clean(f.Path) != target {
				continue
			}

			name, err := p.NameWithContext(ctx)
			if err != nil {
				name = "unknown"
			}
			holders = append(holders, Holder{PID: p.Pid, Name: name})
			break
		}
	}

	return holders, nil
}

// Report logs the holders of path. Failures are logged and otherwise ignored.
func Report(ctx context.Context, path string) {
	holders, err := Holders(ctx, path)
	if err != nil {
		logger.Log.Debug("lock diagnostics unavailable",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	if len(holders) == 0 {
		logger.Log.Info("no process holds the file open",
			zap.String("path", path))
		return
	}

	names := make([]string, len(holders))
	for i, h := range holders {
		names[i] = h.String()
	}

	logger.Log.Warn("file is held open by other processes",
		zap.String("path", path),
		zap.Strings("holders", names))
}
