package repository

import (
	"errors"
	"foldersync/internal/batch"
	"foldersync/internal/db"
	"foldersync/internal/executor"
	"foldersync/internal/model"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) {
	t.Helper()
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "history.db")))
	t.Cleanup(func() { _ = db.Close() })
}

func outcome(rel string, ok bool) batch.Outcome {
	o := batch.Outcome{
		Task: model.SyncTask{
			Command:    model.CommandCreate,
			Entry:      model.NewFileEntry("/src/"+rel, 1, time.Now(), "h").WithRelPath(rel),
			SourcePath: "/src/" + rel,
		},
		Attempts:  1,
		Succeeded: ok,
	}
	if !ok {
		o.Attempts = 3
		o.Final = true
		o.Failures = []error{errors.New("locked"), errors.New("still locked")}
	}
	return o
}

func TestSaveBatchAndQuery(t *testing.T) {
	setupDB(t)
	repo := NewHistoryRepository()
	start := time.Now().Add(-time.Minute)

	summary := executor.Summary{
		Tasks:      3,
		Success:    2,
		Failed:     1,
		Retried:    1,
		Elapsed:    120 * time.Millisecond,
		FinishedAt: time.Now(),
	}
	require.NoError(t, repo.SaveBatch(summary, []batch.Outcome{
		outcome("a.txt", true),
		outcome("b.txt", true),
		outcome("c.txt", false),
	}))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Success: 2, Failed: 1, Batches: 1}, stats)

	recent, err := repo.GetRecent(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	failed, err := repo.GetFailed(start)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c.txt", failed[0].RelPath)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Contains(t, failed[0].ErrMsg, "still locked")

	batches, err := repo.GetRecentBatches(10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(120), batches[0].DurationMs)
}

func TestSaveEmptyBatch(t *testing.T) {
	setupDB(t)
	repo := NewHistoryRepository()

	require.NoError(t, repo.SaveBatch(executor.Summary{FinishedAt: time.Now()}, nil))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Batches)
	assert.Zero(t, stats.Total)
}
