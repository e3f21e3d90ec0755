package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

// History is the final outcome of one sync task.
type History struct {
	gorm.Model
	Status   SyncStatus `gorm:"not null;index" json:"status"`
	Command  string     `gorm:"not null" json:"command"`
	RelPath  string     `gorm:"not null;index" json:"rel_path"`
	SrcPath  string     `json:"src_path"`
	Attempts int        `json:"attempts"`
	ErrMsg   string     `json:"err_msg,omitempty"`
	SyncedAt time.Time  `gorm:"not null;index" json:"synced_at"`
}

type BatchRecord struct {
	gorm.Model
	Tasks      int       `gorm:"not null" json:"tasks"`
	Success    int       `gorm:"not null" json:"success"`
	Failed     int       `gorm:"not null" json:"failed"`
	Retried    int       `json:"retried"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `gorm:"not null;index" json:"finished_at"`
}
