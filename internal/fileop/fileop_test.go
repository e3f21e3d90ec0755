package fileop

import (
	"bytes"
	"context"
	"errors"
	"foldersync/internal/model"
	"foldersync/internal/util"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	x := uint32(seed) + 1
	for i := range b {
		x = x*1664525 + 1013904223
		b[i] = byte(x >> 24)
	}
	return b
}

func TestFromTask(t *testing.T) {
	now := time.Now()
	file := model.NewFileEntry("/src/a/f.txt", 1, now, "h").WithRelPath("a/f.txt")
	folder := model.NewFolderEntry("/src/a", now).WithRelPath("a")
	rep := filepath.FromSlash("/rep")

	op, err := FromTask(model.SyncTask{Command: model.CommandCreate, Entry: folder}, rep)
	require.NoError(t, err)
	assert.Equal(t, Operation{Kind: CreateFolder, Destination: filepath.Join(rep, "a")}, op)

	op, err = FromTask(model.SyncTask{Command: model.CommandCreate, Entry: file, SourcePath: "/src/a/f.txt"}, rep)
	require.NoError(t, err)
	assert.Equal(t, CreateFile, op.Kind)
	assert.Equal(t, "/src/a/f.txt", op.Source)
	assert.Equal(t, filepath.Join(rep, "a", "f.txt"), op.Destination)

	op, err = FromTask(model.SyncTask{Command: model.CommandUpdate, Entry: file, SourcePath: "/src/a/f.txt"}, rep)
	require.NoError(t, err)
	assert.Equal(t, UpdateFile, op.Kind)

	op, err = FromTask(model.SyncTask{Command: model.CommandDelete, Entry: folder}, rep)
	require.NoError(t, err)
	assert.Equal(t, Operation{Kind: Delete, Destination: filepath.Join(rep, "a")}, op)

	_, err = FromTask(model.SyncTask{Command: model.CommandUpdate, Entry: folder}, rep)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestDispatchUnknownKind(t *testing.T) {
	err := NewDispatcher(Options{}).Dispatch(context.Background(), Operation{Kind: Kind(42)})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestCreateFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "notes.txt")
	dst := filepath.Join(dir, "rep", "deep", "notes.txt")
	mod := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)
	writeFile(t, src, []byte("hello replica"), mod)

	d := NewDispatcher(Options{})
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFile, Source: src, Destination: dst}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello replica", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))

	// overwriting a longer file leaves no stale tail
	writeFile(t, src, []byte("short"), mod)
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFile, Source: src, Destination: dst}))
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestCreateFileReplacesFolder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "thing")
	dst := filepath.Join(dir, "rep", "thing")
	writeFile(t, src, []byte("file"), time.Now())
	writeFile(t, filepath.Join(dst, "child.txt"), []byte("old"), time.Now())

	require.NoError(t, NewDispatcher(Options{}).Dispatch(context.Background(), Operation{Kind: CreateFile, Source: src, Destination: dst}))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestCreateFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := NewDispatcher(Options{}).Dispatch(context.Background(), Operation{
		Kind:        CreateFile,
		Source:      filepath.Join(dir, "gone.txt"),
		Destination: filepath.Join(dir, "rep", "gone.txt"),
	})
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestCreateFolder(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a", "b")
	d := NewDispatcher(Options{})

	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFolder, Destination: dst}))
	assert.DirExists(t, dst)

	// already present is a no-op
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFolder, Destination: dst}))

	blocked := filepath.Join(dir, "blocked")
	writeFile(t, blocked, []byte("x"), time.Now())
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFolder, Destination: blocked}))
	assert.DirExists(t, blocked)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	folder := filepath.Join(dir, "x")
	writeFile(t, file, []byte("x"), time.Now())
	writeFile(t, filepath.Join(folder, "y", "z.txt"), []byte("z"), time.Now())

	d := NewDispatcher(Options{})
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: Delete, Destination: file}))
	assert.NoFileExists(t, file)

	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: Delete, Destination: folder}))
	assert.NoDirExists(t, folder)

	// nothing there is already the wanted state
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: Delete, Destination: folder}))
}

func TestDeleteBelowFolderReplacedByFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a")
	dst := filepath.Join(dir, "rep", "a")
	writeFile(t, src, []byte("now a file"), time.Now())
	writeFile(t, filepath.Join(dst, "c.txt"), []byte("child"), time.Now())

	d := NewDispatcher(Options{})
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: CreateFile, Source: src, Destination: dst}))

	// the child went away with its folder
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: Delete, Destination: filepath.Join(dst, "c.txt")}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "now a file", string(got))
}

func TestUpdateFileAppliesDelta(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Setenv("TMP", tmp)

	dir := t.TempDir()
	src := filepath.Join(dir, "src", "data.bin")
	dst := filepath.Join(dir, "rep", "data.bin")

	old := pattern(200_000, 1)
	changed := append([]byte(nil), old...)
	copy(changed[50_000:], bytes.Repeat([]byte("edit"), 100))
	changed = append(changed, pattern(3000, 2)...)

	mod := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, dst, old, mod.Add(-time.Hour))
	writeFile(t, src, changed, mod)

	d := NewDispatcher(Options{VerifyPatched: true})
	require.NoError(t, d.Dispatch(context.Background(), Operation{Kind: UpdateFile, Source: src, Destination: dst}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, changed, got)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))

	leftovers, err := filepath.Glob(filepath.Join(tmp, "foldersync-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUpdateFileMissingSource(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Setenv("TMP", tmp)

	dir := t.TempDir()
	dst := filepath.Join(dir, "data.bin")
	writeFile(t, dst, []byte("replica"), time.Now())

	err := NewDispatcher(Options{}).Dispatch(context.Background(), Operation{
		Kind:        UpdateFile,
		Source:      filepath.Join(dir, "missing.bin"),
		Destination: dst,
	})
	assert.ErrorIs(t, err, ErrMissingSource)

	created, err := filepath.Glob(filepath.Join(tmp, "foldersync-*"))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestUpdateFileMissingReplicaFailsInSignaturePhase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "rep", "dst.bin")
	writeFile(t, src, []byte("source"), time.Now())

	var diagnosed string
	d := NewDispatcher(Options{Diagnose: func(_ context.Context, path string) {
		diagnosed = path
	}})

	err := d.Dispatch(context.Background(), Operation{Kind: UpdateFile, Source: src, Destination: dst})

	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, PhaseSignature, phaseErr.Phase)
	assert.Equal(t, dst, diagnosed)
}

func TestUpdateFileLockedReplica(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("lock semantics differ on windows")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeFile(t, src, []byte("new content"), time.Now())
	writeFile(t, dst, []byte("old content"), time.Now().Add(-time.Hour))

	holder, err := util.OpenExclusive(dst, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer func(f *os.File) {
		_ = f.Close()
	}(holder)

	err = NewDispatcher(Options{}).Dispatch(context.Background(), Operation{Kind: UpdateFile, Source: src, Destination: dst})
	require.Error(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old content", string(got))
}

func TestDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDispatcher(Options{}).Dispatch(ctx, Operation{Kind: CreateFolder, Destination: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateFileReplacesReplicaSymlink(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Setenv("TMP", tmp)

	dir := t.TempDir()
	outside := filepath.Join(dir, "outside.txt")
	writeFile(t, outside, []byte("not part of the replica"), time.Now())

	src := filepath.Join(dir, "src", "x.txt")
	dst := filepath.Join(dir, "rep", "x.txt")
	mod := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	writeFile(t, src, []byte("source content"), mod)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	if err := os.Symlink(filepath.Join("..", "outside.txt"), dst); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	require.NoError(t, NewDispatcher(Options{}).Dispatch(context.Background(), Operation{Kind: UpdateFile, Source: src, Destination: dst}))

	got, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "not part of the replica", string(got))

	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.True(t, info.ModTime().Equal(mod))

	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "source content", string(got))

	leftovers, err := filepath.Glob(filepath.Join(tmp, "foldersync-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
