package executor

import (
	"context"
	"foldersync/internal/model"
	"foldersync/internal/queue"
)

// Enqueue hands tasks to the running executor. WaitIdle returns once they,
// and everything enqueued before them, are finished.
func (e *Executor) Enqueue(ctx context.Context, tasks []model.SyncTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	e.addPending(len(tasks))

	n, err := queue.Produce(ctx, e.queue, tasks)
	if n < len(tasks) {
		e.addPending(n - len(tasks))
	}

	return n, err
}

func (e *Executor) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Executor) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals
}

func (e *Executor) addPending(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPending(e.pending + delta)
}

func (e *Executor) finish(tasks int, s Summary) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totals.Batches++
	e.totals.Tasks += s.Tasks
	e.totals.Success += s.Success
	e.totals.Failed += s.Failed
	e.totals.Retried += s.Retried

	e.setPending(e.pending - tasks)
}

// setPending must be called with mu held.
func (e *Executor) setPending(n int) {
	n = max(n, 0)

	switch {
	case e.pending == 0 && n > 0:
		e.idle = make(chan struct{})
	case e.pending > 0 && n == 0:
		close(e.idle)
	}

	e.pending = n
}
