package pipeline

import (
	"context"
	"errors"
	"fmt"
	"foldersync/internal/executor"
	"foldersync/internal/labeler"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"foldersync/internal/scanner"
	"foldersync/internal/state"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FingerprintCache interface {
	Get() (model.Fingerprint, bool)
	Set(fp model.Fingerprint) error
	Flush() error
}

type Executor interface {
	Enqueue(ctx context.Context, tasks []model.SyncTask) (int, error)
	WaitIdle(ctx context.Context) error
	Totals() executor.Totals
}

type CycleResult struct {
	ID             string
	Unchanged      bool
	Flushed        bool
	SourceEntries  int
	ReplicaEntries int
	Tasks          int
	Success        int
	Failed         int
	Elapsed        time.Duration
}

// Pipeline runs one synchronization cycle from source to replica.
type Pipeline struct {
	source  string
	replica string
	scanner *scanner.Scanner
	cache   FingerprintCache
	exec    Executor
}

func New(source, replica string, s *scanner.Scanner, cache FingerprintCache, exec Executor) *Pipeline {
	return &Pipeline{
		source:  source,
		replica: replica,
		scanner: s,
		cache:   cache,
		exec:    exec,
	}
}

// RunCycle scans the source and, when its fingerprint differs from the cached
// one, diffs it against the replica and waits until every resulting task is
// finished. The fingerprint is stored only if no task failed for good.
func (p *Pipeline) RunCycle(ctx context.Context) (res CycleResult, err error) {
	start := time.Now()
	res.ID = uuid.NewString()
	log := logger.Log.With(zap.String("cycle", res.ID))

	defer func() {
		res.Elapsed = time.Since(start)
	}()

	if err := ensureSource(p.source); err != nil {
		return res, err
	}

	entries, err := p.scanner.Scan(ctx, p.source).Collect()
	if err != nil {
		log.Error("failed to scan source",
			zap.String("source", p.source),
			zap.Error(err))
		return res, fmt.Errorf("failed to scan source: %w", err)
	}
	res.SourceEntries = len(entries)

	fp := state.Determine(entries)

	if cached, ok := p.cache.Get(); ok && cached.Equal(fp) {
		res.Unchanged = true
		res.Flushed = p.verifyCounts(ctx, log, len(entries), &res)

		log.Debug("source unchanged",
			zap.Int("entries", res.SourceEntries),
			zap.Bool("flushed", res.Flushed))
		return res, nil
	}

	tasks, err := labeler.Label(ctx,
		p.source, scanner.FromEntries(entries),
		p.replica, p.scanner.Scan(ctx, p.replica))
	if err != nil {
		log.Error("labeling failed, skipping cycle",
			zap.Error(err))
		return res, err
	}
	res.Tasks = len(tasks)

	before := p.exec.Totals()

	if _, err := p.exec.Enqueue(ctx, tasks); err != nil {
		return res, fmt.Errorf("failed to enqueue tasks: %w", err)
	}
	if err := p.exec.WaitIdle(ctx); err != nil {
		return res, fmt.Errorf("failed waiting for executor: %w", err)
	}

	after := p.exec.Totals()
	res.Success = after.Success - before.Success
	res.Failed = after.Failed - before.Failed

	if res.Failed == 0 {
		if err := p.cache.Set(fp); err != nil {
			log.Warn("failed to store fingerprint",
				zap.Error(err))
		}
	} else {
		p.flush(log)
		res.Flushed = true
	}

	log.Info("cycle finished",
		zap.Int("source_entries", res.SourceEntries),
		zap.Int("tasks", res.Tasks),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

// verifyCounts flushes the cache when the replica holds a different number
// of entries than the source even though the fingerprint matched.
func (p *Pipeline) verifyCounts(ctx context.Context, log *zap.Logger, sourceCount int, res *CycleResult) bool {
	count, err := p.scanner.Count(ctx, p.replica)
	if err != nil {
		log.Warn("failed to count replica entries",
			zap.String("replica", p.replica),
			zap.Error(err))
		return false
	}
	res.ReplicaEntries = count

	if count == sourceCount {
		return false
	}

	log.Warn("entry counts differ despite matching fingerprint, flushing cache",
		zap.Int("source", sourceCount),
		zap.Int("replica", count))
	p.flush(log)
	return true
}

func (p *Pipeline) flush(log *zap.Logger) {
	if err := p.cache.Flush(); err != nil {
		log.Warn("failed to flush fingerprint cache",
			zap.Error(err))
	}
}

func ensureSource(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create source dir: %w", err)
	}

	logger.Log.Info("source directory created",
		zap.String("path", path))
	return nil
}
