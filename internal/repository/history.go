package repository

import (
	"foldersync/internal/batch"
	"foldersync/internal/db"
	"foldersync/internal/executor"
	"foldersync/internal/model"
	"time"

	"gorm.io/gorm"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// SaveBatch stores the batch summary and the final outcome of each task in a
// single transaction.
func (r *HistoryRepository) SaveBatch(summary executor.Summary, outcomes []batch.Outcome) error {
	record := model.BatchRecord{
		Tasks:      summary.Tasks,
		Success:    summary.Success,
		Failed:     summary.Failed,
		Retried:    summary.Retried,
		DurationMs: summary.Elapsed.Milliseconds(),
		FinishedAt: summary.FinishedAt,
	}

	histories := make([]model.History, 0, len(outcomes))
	for _, o := range outcomes {
		status := model.StatusSuccess
		errMsg := ""
		if !o.Succeeded {
			status = model.StatusFailed
			if err := o.Err(); err != nil {
				errMsg = err.Error()
			}
		}

		histories = append(histories, model.History{
			Status:   status,
			Command:  string(o.Task.Command),
			RelPath:  o.Task.Key(),
			SrcPath:  o.Task.SourcePath,
			Attempts: o.Attempts,
			ErrMsg:   errMsg,
			SyncedAt: summary.FinishedAt,
		})
	}

	return db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if len(histories) == 0 {
			return nil
		}
		return tx.CreateInBatches(&histories, 100).Error
	})
}

type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Batches int64 `json:"batches"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.BatchRecord{}).Count(&stats.Batches).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("synced_at desc, id desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed(since time.Time) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("status = ? AND synced_at >= ?", model.StatusFailed, since).
		Order("synced_at desc").
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetRecentBatches(limit int) ([]model.BatchRecord, error) {
	var records []model.BatchRecord
	result := db.DB.
		Order("finished_at desc, id desc").
		Limit(limit).
		Find(&records)

	return records, result.Error
}
