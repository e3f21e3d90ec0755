package queue

import (
	"context"
	"errors"
	"foldersync/internal/model"
	"sync"
)

var ErrClosed = errors.New("queue is closed")

const DefaultCapacity = 1024

// Queue is a bounded FIFO of sync tasks. Close stops writers; readers keep
// receiving buffered tasks until the queue is empty.
type Queue struct {
	items chan model.SyncTask
	done  chan struct{}

	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Queue{
		items: make(chan model.SyncTask, capacity),
		done:  make(chan struct{}),
	}
}

// Write blocks while the queue is full.
func (q *Queue) Write(ctx context.Context, task model.SyncTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read blocks until a task is available. It returns ErrClosed once the queue
// is closed and drained.
func (q *Queue) Read(ctx context.Context) (model.SyncTask, error) {
	select {
	case task, ok := <-q.items:
		if !ok {
			return model.SyncTask{}, ErrClosed
		}
		return task, nil
	case <-ctx.Done():
		return model.SyncTask{}, ctx.Err()
	}
}

// TryRead returns immediately. ok is false when nothing is buffered.
func (q *Queue) TryRead() (model.SyncTask, bool, error) {
	select {
	case task, ok := <-q.items:
		if !ok {
			return model.SyncTask{}, false, ErrClosed
		}
		return task, true, nil
	default:
		return model.SyncTask{}, false, nil
	}
}

// Close is idempotent. Writers blocked on a full queue are released with
// ErrClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()

		q.closed = true
		close(q.items)
	})
}

func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Produce writes tasks in order and returns how many were accepted.
func Produce(ctx context.Context, q *Queue, tasks []model.SyncTask) (int, error) {
	for i, task := range tasks {
		if err := q.Write(ctx, task); err != nil {
			return i, err
		}
	}
	return len(tasks), nil
}
