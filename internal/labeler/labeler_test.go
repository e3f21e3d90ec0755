package labeler

import (
	"context"
	"errors"
	"foldersync/internal/model"
	"foldersync/internal/scanner"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
)

func folder(root, rel string) model.Entry {
	return model.NewFolderEntry(root+"/"+rel, t1)
}

func file(root, rel, hash string, mod time.Time) model.Entry {
	return model.NewFileEntry(root+"/"+rel, 10, mod, hash)
}

func label(t *testing.T, src, rep []model.Entry) []model.SyncTask {
	t.Helper()
	tasks, err := Label(context.Background(),
		"/src", scanner.FromEntries(src),
		"/rep", scanner.FromEntries(rep))
	require.NoError(t, err)
	return tasks
}

func summary(tasks []model.SyncTask) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = string(task.Command) + " " + task.Key()
	}
	return out
}

func TestLabelDepthOrdering(t *testing.T) {
	src := []model.Entry{
		file("/src", "a/b/file.txt", "h", t1),
		folder("/src", "a/b"),
		folder("/src", "a"),
	}

	tasks := label(t, src, nil)
	assert.Equal(t, []string{
		"CREATE a",
		"CREATE a/b",
		"CREATE a/b/file.txt",
	}, summary(tasks))
	assert.Equal(t, "/src/a/b/file.txt", tasks[2].SourcePath)
}

func TestLabelDeleteOrdering(t *testing.T) {
	rep := []model.Entry{
		folder("/rep", "x"),
		file("/rep", "x/y.txt", "h", t1),
	}

	tasks := label(t, nil, rep)
	assert.Equal(t, []string{"DELETE x/y.txt", "DELETE x"}, summary(tasks))
	assert.Equal(t, "/rep/x/y.txt", tasks[0].Entry.Path)
}

func TestLabelUpdateTriggers(t *testing.T) {
	t.Run("hash changed, same mtime", func(t *testing.T) {
		tasks := label(t,
			[]model.Entry{file("/src", "f.txt", "new", t1)},
			[]model.Entry{file("/rep", "f.txt", "old", t1)})
		assert.Equal(t, []string{"UPDATE f.txt"}, summary(tasks))
	})

	t.Run("same hash, newer mtime", func(t *testing.T) {
		tasks := label(t,
			[]model.Entry{file("/src", "f.txt", "h", t2)},
			[]model.Entry{file("/rep", "f.txt", "h", t1)})
		assert.Equal(t, []string{"UPDATE f.txt"}, summary(tasks))
	})

	t.Run("same hash, older mtime", func(t *testing.T) {
		tasks := label(t,
			[]model.Entry{file("/src", "f.txt", "h", t1)},
			[]model.Entry{file("/rep", "f.txt", "h", t2)})
		assert.Empty(t, tasks)
	})

	t.Run("unchanged", func(t *testing.T) {
		tasks := label(t,
			[]model.Entry{folder("/src", "d"), file("/src", "d/f.txt", "h", t1)},
			[]model.Entry{folder("/rep", "d"), file("/rep", "d/f.txt", "h", t1)})
		assert.Empty(t, tasks)
	})
}

func TestLabelCategoryOrder(t *testing.T) {
	src := []model.Entry{
		file("/src", "keep.txt", "new", t1),
		folder("/src", "new"),
		file("/src", "new/file.txt", "h", t1),
	}
	rep := []model.Entry{
		file("/rep", "keep.txt", "old", t1),
		folder("/rep", "gone"),
		file("/rep", "gone/old.txt", "h", t1),
	}

	assert.Equal(t, []string{
		"CREATE new",
		"UPDATE keep.txt",
		"CREATE new/file.txt",
		"DELETE gone/old.txt",
		"DELETE gone",
	}, summary(label(t, src, rep)))
}

func TestLabelKindMismatch(t *testing.T) {
	src := []model.Entry{file("/src", "thing", "h", t1), folder("/src", "dir")}
	rep := []model.Entry{folder("/rep", "thing"), file("/rep", "dir", "h", t1)}

	assert.Equal(t, []string{"CREATE dir", "CREATE thing"}, summary(label(t, src, rep)))
}

func TestLabelDuplicateLastWins(t *testing.T) {
	src := []model.Entry{
		file("/src", "f.txt", "first", t1),
		file("/src", "f.txt", "second", t1),
	}
	rep := []model.Entry{file("/rep", "f.txt", "second", t1)}

	assert.Empty(t, label(t, src, rep))
}

func TestLabelUsesRelPathWhenSet(t *testing.T) {
	src := []model.Entry{
		model.NewFileEntry(`C:\src\f.txt`, 1, t1, "h").WithRelPath("f.txt"),
	}
	rep := []model.Entry{file("/rep", "f.txt", "h", t1)}

	assert.Empty(t, label(t, src, rep))
}

func TestLabelAbortsOnEnumerationFailure(t *testing.T) {
	boom := errors.New("permission denied")

	tasks, err := Label(context.Background(),
		"/src", scanner.Failed(boom),
		"/rep", scanner.FromEntries([]model.Entry{file("/rep", "f.txt", "h", t1)}))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, tasks)

	tasks, err = Label(context.Background(),
		"/src", scanner.FromEntries([]model.Entry{file("/src", "f.txt", "h", t1)}),
		"/rep", scanner.Failed(boom))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, tasks)
}

func TestLabelEndToEndScenario(t *testing.T) {
	// empty replica
	tasks := label(t, []model.Entry{file("/src", "notes.txt", "H1", t1)}, nil)
	assert.Equal(t, []string{"CREATE notes.txt"}, summary(tasks))

	// content changed
	tasks = label(t,
		[]model.Entry{file("/src", "notes.txt", "H2", t2)},
		[]model.Entry{file("/rep", "notes.txt", "H1", t1)})
	assert.Equal(t, []string{"UPDATE notes.txt"}, summary(tasks))

	// removed from source
	tasks = label(t, nil, []model.Entry{file("/rep", "notes.txt", "H2", t2)})
	assert.Equal(t, []string{"DELETE notes.txt"}, summary(tasks))
	assert.Equal(t, "/rep/notes.txt", tasks[0].Entry.Path)
}
