package model

import "time"

type StatusSnapshot struct {
	Source      string     `json:"source"`
	Replica     string     `json:"replica"`
	Interval    string     `json:"interval"`
	StartedAt   time.Time  `json:"started_at"`
	Cycles      int        `json:"cycles"`
	Unchanged   int        `json:"unchanged"`
	Batches     int        `json:"batches"`
	Synced      int        `json:"synced"`
	Failed      int        `json:"failed"`
	LastCycle   *time.Time `json:"last_cycle"`
	LastTasks   int        `json:"last_tasks"`
	LastError   string     `json:"last_error,omitempty"`
	QueueLength int        `json:"queue_length"`
	Stopping    bool       `json:"stopping"`
	HashCached  int        `json:"hash_cached"`
}
