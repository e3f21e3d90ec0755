package daemon

import (
	"foldersync/internal/executor"
	"foldersync/internal/model"
	"foldersync/internal/pipeline"
	"sync"
	"time"
)

type Status struct {
	mu        sync.RWMutex
	source    string
	replica   string
	interval  time.Duration
	startedAt time.Time
	cycles    int
	unchanged int
	batches   int
	synced    int
	failed    int
	lastCycle *time.Time
	lastTasks int
	lastError string
}

func NewStatus(source, replica string, interval time.Duration) *Status {
	return &Status{
		source:    source,
		replica:   replica,
		interval:  interval,
		startedAt: time.Now(),
	}
}

func (s *Status) RecordCycle(res pipeline.CycleResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.lastCycle = new(time.Now())
	s.lastTasks = res.Tasks
	if res.Unchanged {
		s.unchanged++
	}

	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *Status) RecordBatch(summary executor.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	s.synced += summary.Success
	s.failed += summary.Failed
}

// Runtime holds the values read from live components at snapshot time.
type Runtime struct {
	QueueLength int
	Stopping    bool
	HashCached  int
}

func (s *Status) Snapshot(rt Runtime) model.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.StatusSnapshot{
		Source:      s.source,
		Replica:     s.replica,
		Interval:    s.interval.String(),
		StartedAt:   s.startedAt,
		Cycles:      s.cycles,
		Unchanged:   s.unchanged,
		Batches:     s.batches,
		Synced:      s.synced,
		Failed:      s.failed,
		LastCycle:   s.lastCycle,
		LastTasks:   s.lastTasks,
		LastError:   s.lastError,
		QueueLength: rt.QueueLength,
		Stopping:    rt.Stopping,
		HashCached:  rt.HashCached,
	}
}
