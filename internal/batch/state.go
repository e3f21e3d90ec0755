package batch

import (
	"errors"
	"foldersync/internal/model"
	"hash/fnv"
	"sort"
	"sync"
)

const defaultShards = 16

// Outcome is the ledger record of one task across its attempts.
type Outcome struct {
	Task      model.SyncTask
	Attempts  int
	Failures  []error
	Succeeded bool
	// Final is set once the attempt budget is spent without success.
	Final bool
}

// Err joins every recorded failure cause.
func (o Outcome) Err() error {
	return errors.Join(o.Failures...)
}

type shard struct {
	mu       sync.Mutex
	outcomes map[string]*Outcome
}

// State records per task success and failure for one batch. Marking is safe
// from concurrent task executions; each key is guarded by its own shard lock.
type State struct {
	shards []*shard
}

func NewState() *State {
	s := &State{shards: make([]*shard, defaultShards)}
	for i := range s.shards {
		s.shards[i] = &shard{outcomes: make(map[string]*Outcome)}
	}
	return s
}

func (s *State) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()&uint32(len(s.shards)-1)]
}

func (s *State) update(task model.SyncTask, fn func(o *Outcome)) {
	key := task.Key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	o, ok := sh.outcomes[key]
	if !ok {
		o = &Outcome{Task: task}
		sh.outcomes[key] = o
	}
	fn(o)
}

// MarkSuccess clears any failure recorded earlier for the task.
func (s *State) MarkSuccess(task model.SyncTask) {
	s.update(task, func(o *Outcome) {
		o.Attempts++
		o.Succeeded = true
		o.Final = false
		o.Failures = nil
	})
}

func (s *State) MarkFailure(task model.SyncTask, err error) {
	s.update(task, func(o *Outcome) {
		o.Attempts++
		o.Succeeded = false
		o.Failures = append(o.Failures, err)
	})
}

// Finalize turns every task still failing into a final failure and returns
// those outcomes.
func (s *State) Finalize() []Outcome {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, o := range sh.outcomes {
			if !o.Succeeded {
				o.Final = true
			}
		}
		sh.mu.Unlock()
	}

	return s.collect(func(o *Outcome) bool { return o.Final })
}

// Failed returns the tasks currently marked failed, ordered by key.
func (s *State) Failed() []model.SyncTask {
	outcomes := s.collect(func(o *Outcome) bool { return !o.Succeeded })

	tasks := make([]model.SyncTask, len(outcomes))
	for i, o := range outcomes {
		tasks[i] = o.Task
	}
	return tasks
}

func (s *State) Outcome(key string) (Outcome, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	o, ok := sh.outcomes[key]
	if !ok {
		return Outcome{}, false
	}
	return copyOutcome(o), true
}

// Outcomes returns a snapshot of every record, ordered by key.
func (s *State) Outcomes() []Outcome {
	return s.collect(func(*Outcome) bool { return true })
}

func (s *State) SuccessCount() int {
	return s.count(func(o *Outcome) bool { return o.Succeeded })
}

func (s *State) FailureCount() int {
	return s.count(func(o *Outcome) bool { return !o.Succeeded })
}

// RetryCount is the number of tasks that needed more than one attempt.
func (s *State) RetryCount() int {
	return s.count(func(o *Outcome) bool { return o.Attempts > 1 })
}

func (s *State) count(keep func(*Outcome) bool) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, o := range sh.outcomes {
			if keep(o) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (s *State) collect(keep func(*Outcome) bool) []Outcome {
	var out []Outcome
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, o := range sh.outcomes {
			if keep(o) {
				out = append(out, copyOutcome(o))
			}
		}
		sh.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Task.Key() < out[j].Task.Key()
	})
	return out
}

func copyOutcome(o *Outcome) Outcome {
	c := *o
	c.Failures = append([]error(nil), o.Failures...)
	return c
}
