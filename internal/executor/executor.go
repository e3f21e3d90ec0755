package executor

import (
	"context"
	"errors"
	"fmt"
	"foldersync/internal/batch"
	"foldersync/internal/fileop"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"foldersync/internal/queue"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, op fileop.Operation) error
}

type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	MaxConcurrency int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		FlushInterval:  50 * time.Millisecond,
		MaxAttempts:    3,
		RetryDelay:     200 * time.Millisecond,
		MaxConcurrency: 4,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	return c
}

type Summary struct {
	Tasks      int
	Success    int
	Failed     int
	Retried    int
	Elapsed    time.Duration
	FinishedAt time.Time
}

type Totals struct {
	Batches int
	Tasks   int
	Success int
	Failed  int
	Retried int
}

// Observer receives the summary of every finished batch together with the
// final outcome of each of its tasks.
type Observer func(Summary, []batch.Outcome)

// Executor drains the task queue in batches and applies every task to the
// replica through the dispatcher.
type Executor struct {
	queue       *queue.Queue
	dispatcher  Dispatcher
	replicaRoot string
	cfg         Config
	limiter     *semaphore.Weighted

	observers []Observer

	mu      sync.Mutex
	pending int
	idle    chan struct{}
	totals  Totals
}

func New(q *queue.Queue, dispatcher Dispatcher, replicaRoot string, cfg Config) *Executor {
	cfg = cfg.withDefaults()

	idle := make(chan struct{})
	close(idle)

	return &Executor{
		queue:       q,
		dispatcher:  dispatcher,
		replicaRoot: replicaRoot,
		cfg:         cfg,
		limiter:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		idle:        idle,
	}
}

// OnBatch registers an observer. It must be called before Run.
func (e *Executor) OnBatch(fn Observer) {
	e.observers = append(e.observers, fn)
}

// Run consumes the queue until it is closed and drained or ctx is done.
func (e *Executor) Run(ctx context.Context) error {
	logger.Log.Info("executor started",
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Duration("flush_interval", e.cfg.FlushInterval),
		zap.Int("max_concurrency", e.cfg.MaxConcurrency),
		zap.Int("max_attempts", e.cfg.MaxAttempts))

	for {
		tasks, err := e.collect(ctx)
		if len(tasks) > 0 {
			e.ExecuteBatch(ctx, tasks)
		}

		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				logger.Log.Info("queue closed, executor stopped")
				return nil
			}
			return err
		}
	}
}

// collect blocks for the first task, then keeps reading until the batch is
// full or the flush interval passes.
func (e *Executor) collect(ctx context.Context) ([]model.SyncTask, error) {
	first, err := e.queue.Read(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]model.SyncTask, 0, e.cfg.BatchSize)
	tasks = append(tasks, first)

	flushCtx, cancel := context.WithTimeout(ctx, e.cfg.FlushInterval)
	defer cancel()

	for len(tasks) < e.cfg.BatchSize {
		task, ok, err := e.queue.TryRead()
		if ok {
			tasks = append(tasks, task)
			continue
		}
		if err != nil {
			return tasks, err
		}

		task, err = e.queue.Read(flushCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return tasks, nil
			}
			if ctx.Err() != nil {
				return tasks, ctx.Err()
			}
			return tasks, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// ExecuteBatch runs tasks concurrently and retries the failed ones until they
// succeed or the attempt budget is spent.
func (e *Executor) ExecuteBatch(ctx context.Context, tasks []model.SyncTask) *batch.State {
	start := time.Now()
	state := batch.NewState()

	pending := tasks
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			pending = state.Failed()
			if len(pending) == 0 {
				break
			}

			logger.Log.Debug("retrying failed tasks",
				zap.Int("attempt", attempt),
				zap.Int("tasks", len(pending)))

			if !sleep(ctx, e.cfg.RetryDelay) {
				break
			}
		}

		e.runAttempt(ctx, pending, state)
	}

	final := state.Finalize()
	summary := Summary{
		Tasks:      len(tasks),
		Success:    state.SuccessCount(),
		Failed:     state.FailureCount(),
		Retried:    state.RetryCount(),
		Elapsed:    time.Since(start),
		FinishedAt: time.Now(),
	}

	logger.Log.Info("batch finished",
		zap.Int("tasks", summary.Tasks),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed),
		zap.Int("retried", summary.Retried),
		zap.Duration("elapsed", summary.Elapsed))

	for _, o := range final {
		logger.Log.Error("task failed",
			zap.String("command", string(o.Task.Command)),
			zap.String("path", o.Task.Key()),
			zap.Int("attempts", o.Attempts),
			zap.Error(o.Err()))
	}

	outcomes := state.Outcomes()
	for _, fn := range e.observers {
		fn(summary, outcomes)
	}

	e.finish(len(tasks), summary)
	return state
}

// runAttempt executes tasks concurrently. Tasks sharing a path run one after
// the other in their labeled order.
func (e *Executor) runAttempt(ctx context.Context, tasks []model.SyncTask, state *batch.State) {
	var g errgroup.Group
	for _, group := range groupByKey(tasks) {
		g.Go(func() error {
			for _, task := range group {
				e.runTask(ctx, task, state)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) runTask(ctx context.Context, task model.SyncTask, state *batch.State) {
	if err := e.limiter.Acquire(ctx, 1); err != nil {
		state.MarkFailure(task, err)
		return
	}
	defer e.limiter.Release(1)

	if err := e.execute(ctx, task); err != nil {
		logger.Log.Warn("task attempt failed",
			zap.String("command", string(task.Command)),
			zap.String("path", task.Key()),
			zap.Error(err))
		state.MarkFailure(task, err)
		return
	}

	state.MarkSuccess(task)
}

func (e *Executor) execute(ctx context.Context, task model.SyncTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while applying %s: %v", task.Key(), r)
		}
	}()

	op, err := fileop.FromTask(task, e.replicaRoot)
	if err != nil {
		return err
	}

	return e.dispatcher.Dispatch(ctx, op)
}

func groupByKey(tasks []model.SyncTask) [][]model.SyncTask {
	index := make(map[string]int, len(tasks))
	var groups [][]model.SyncTask

	for _, task := range tasks {
		key := task.Key()
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], task)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []model.SyncTask{task})
	}

	return groups
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
