package daemon

import (
	"context"
	"errors"
	"fmt"
	"foldersync/internal/batch"
	"foldersync/internal/config"
	"foldersync/internal/db"
	"foldersync/internal/executor"
	"foldersync/internal/fileop"
	"foldersync/internal/lockdiag"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"foldersync/internal/pipeline"
	"foldersync/internal/queue"
	"foldersync/internal/repository"
	"foldersync/internal/scanner"
	"foldersync/internal/state"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Daemon owns the long lived parts of the sync engine: the task queue, the
// executor draining it and the scheduler running one cycle at a time.
type Daemon struct {
	cfg       *config.Config
	queue     *queue.Queue
	exec      *executor.Executor
	pipeline  *pipeline.Pipeline
	scanner   *scanner.Scanner
	hashCache *scanner.HashCache
	cache     *state.Cache
	history   *repository.HistoryRepository
	status    *Status
	trigger   chan struct{}

	cycleMu sync.Mutex

	execOnce   sync.Once
	execCancel context.CancelFunc
	execDone   chan struct{}

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	watcher    *Watcher

	stopOnce sync.Once
	stopErr  error
}

// New wires the engine from a validated configuration. History is recorded
// only when the database has been initialized.
func New(cfg *config.Config) (*Daemon, error) {
	hashCache, err := scanner.NewHashCache(cfg.HashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}

	s := scanner.New(scanner.Options{
		Workers:    cfg.ScanWorkers,
		IgnoreList: cfg.IgnoreList,
		Cache:      hashCache,
	})

	dispatcher := fileop.NewDispatcher(fileop.Options{
		Params:        cfg.DeltaParams(),
		VerifyPatched: cfg.VerifyPatched,
		Diagnose:      lockdiag.Report,
	})

	q := queue.New(cfg.QueueCapacity)
	exec := executor.New(q, dispatcher, cfg.ReplicaPath, cfg.Executor())
	cache := state.NewCache(cfg.StatePath)

	d := &Daemon{
		cfg:       cfg,
		queue:     q,
		exec:      exec,
		pipeline:  pipeline.New(cfg.SourcePath, cfg.ReplicaPath, s, cache, exec),
		scanner:   s,
		hashCache: hashCache,
		cache:     cache,
		status:    NewStatus(cfg.SourcePath, cfg.ReplicaPath, cfg.Interval()),
		trigger:   make(chan struct{}, 1),
	}

	if db.DB != nil {
		d.history = repository.NewHistoryRepository()
	}

	exec.OnBatch(d.recordBatch)
	return d, nil
}

func (d *Daemon) recordBatch(summary executor.Summary, outcomes []batch.Outcome) {
	d.status.RecordBatch(summary)

	if d.history == nil {
		return
	}
	if err := d.history.SaveBatch(summary, outcomes); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

func (d *Daemon) startExecutor() {
	d.execOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		d.execCancel = cancel
		d.execDone = make(chan struct{})

		go func() {
			defer close(d.execDone)
			if err := d.exec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Error("executor stopped",
					zap.Error(err))
			}
		}()
	})
}

// Start launches the executor and the periodic scheduler. With watch enabled
// source changes also wake the scheduler early.
func (d *Daemon) Start() error {
	d.startExecutor()

	if d.cfg.Watch {
		w, err := NewWatcher(d.cfg.SourcePath, d.scanner.Ignored, d.trigger)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		d.watcher = w
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.loopCancel = cancel
	d.loopDone = make(chan struct{})
	go d.loop(ctx)

	logger.Log.Info("scheduler started",
		zap.String("source", d.cfg.SourcePath),
		zap.String("replica", d.cfg.ReplicaPath),
		zap.Duration("interval", d.cfg.Interval()),
		zap.Bool("watch", d.cfg.Watch))
	return nil
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.loopDone)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-d.trigger:
			timer.Stop()
		}

		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Warn("sync cycle failed",
				zap.Error(err))
		}

		timer.Reset(d.cfg.Interval())
	}
}

// RunOnce runs a single cycle. Cycles never overlap.
func (d *Daemon) RunOnce(ctx context.Context) (pipeline.CycleResult, error) {
	d.startExecutor()

	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	res, err := d.pipeline.RunCycle(ctx)
	d.status.RecordCycle(res, err)
	return res, err
}

// RequestSync asks the scheduler for an immediate cycle. It returns false if
// one is already pending.
func (d *Daemon) RequestSync() bool {
	select {
	case d.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (d *Daemon) FlushCache() error {
	return d.cache.Flush()
}

func (d *Daemon) Snapshot() model.StatusSnapshot {
	return d.status.Snapshot(Runtime{
		QueueLength: d.queue.Len(),
		Stopping:    d.queue.Closed(),
		HashCached:  d.hashCache.Len(),
	})
}

// Stop halts the scheduler, closes the queue and waits for the executor to
// drain it. When ctx ends first, in-flight tasks are cancelled.
func (d *Daemon) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		if d.loopCancel != nil {
			d.loopCancel()
			<-d.loopDone
		}

		if d.watcher != nil {
			d.watcher.Stop()
		}

		d.queue.Close()

		if d.execDone != nil {
			select {
			case <-d.execDone:
			case <-ctx.Done():
				logger.Log.Warn("shutdown timeout reached, cancelling in-flight tasks",
					zap.Int("pending", d.exec.Pending()))
				d.execCancel()
				<-d.execDone
				d.stopErr = ctx.Err()
			}
			d.execCancel()
		}

		totals := d.exec.Totals()
		logger.Log.Info("daemon stopped",
			zap.Int("batches", totals.Batches),
			zap.Int("success", totals.Success),
			zap.Int("failed", totals.Failed))
	})

	return d.stopErr
}
