package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"foldersync/internal/model"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func byKey(entries []model.Entry) map[string]model.Entry {
	m := make(map[string]model.Entry, len(entries))
	for _, e := range entries {
		m[e.Key()] = e
	}
	return m
}

func TestScanEmitsFilesAndFolders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/file.txt", "hello")
	writeFile(t, root, "top.txt", "top")
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	entries, err := New(Options{Workers: 2}).Scan(context.Background(), root).Collect()
	require.NoError(t, err)

	got := byKey(entries)
	require.Len(t, got, 5)

	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "a/b", "a/b/file.txt", "empty", "top.txt"}, keys)

	file := got["a/b/file.txt"]
	assert.True(t, file.IsFile())
	assert.Equal(t, int64(5), file.Size)
	assert.Equal(t, sum("hello"), file.Hash)
	assert.Equal(t, filepath.Join(root, "a", "b", "file.txt"), file.Path)
	assert.Equal(t, time.UTC, file.ModTime.Location())

	assert.True(t, got["a/b"].IsFolder())
	assert.True(t, got["empty"].IsFolder())
}

func TestScanMissingRootIsEmpty(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	entries, err := New(Options{}).Scan(context.Background(), root).Collect()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanRootIsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")

	_, err := New(Options{}).Scan(context.Background(), filepath.Join(dir, "file.txt")).Collect()
	assert.Error(t, err)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	for i := range 20 {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i))+".txt"), "data")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Workers: 1}).Scan(ctx, root).Collect()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanIgnoreList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "k")
	writeFile(t, root, "skip.tmp", "s")
	writeFile(t, root, ".git/config", "c")
	writeFile(t, root, "sub/.git/HEAD", "h")
	writeFile(t, root, "sub/keep.go", "g")

	s := New(Options{IgnoreList: []string{"*.tmp", ".git"}})
	entries, err := s.Scan(context.Background(), root).Collect()
	require.NoError(t, err)

	got := byKey(entries)
	assert.Contains(t, got, "keep.txt")
	assert.Contains(t, got, "sub")
	assert.Contains(t, got, "sub/keep.go")
	assert.NotContains(t, got, "skip.tmp")
	assert.NotContains(t, got, ".git")
	assert.NotContains(t, got, ".git/config")
	assert.NotContains(t, got, "sub/.git/HEAD")

	n, err := s.Count(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, len(entries), n)
}

func TestScanSymlinkIsOpaqueFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "target.txt", "t")
	if err := os.Symlink("target.txt", filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	entries, err := New(Options{}).Scan(context.Background(), root).Collect()
	require.NoError(t, err)

	link := byKey(entries)["link"]
	assert.True(t, link.IsFile())
	assert.Equal(t, sum("symlink:target.txt"), link.Hash)
}

func TestScanUsesHashCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.txt", "content")

	cache, err := NewHashCache(16)
	require.NoError(t, err)

	s := New(Options{Cache: cache})
	first, err := s.Scan(context.Background(), root).Collect()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, cache.Len())

	// same size and mtime: cached hash is reused even though the bytes differ
	p := filepath.Join(root, "f.txt")
	info, err := os.Stat(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("CONTENT"), 0o644))
	require.NoError(t, os.Chtimes(p, info.ModTime(), info.ModTime()))

	second, err := s.Scan(context.Background(), root).Collect()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Hash, second[0].Hash)

	// a new mtime invalidates it
	later := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(p, later, later))

	third, err := s.Scan(context.Background(), root).Collect()
	require.NoError(t, err)
	assert.Equal(t, sum("CONTENT"), third[0].Hash)
}

func TestNewHashCacheDisabled(t *testing.T) {
	cache, err := NewHashCache(0)
	require.NoError(t, err)
	assert.Nil(t, cache)

	cache.Store("p", 1, time.Now(), "h")
	_, ok := cache.Lookup("p", 1, time.Now())
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCountMissingRoot(t *testing.T) {
	n, err := New(Options{}).Count(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFromEntriesAndFailed(t *testing.T) {
	e := model.NewFolderEntry("/x", time.Now()).WithRelPath("x")
	entries, err := FromEntries([]model.Entry{e}).Collect()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = Failed(assert.AnError).Collect()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestScanFollowsSymlinkedRoot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	writeFile(t, target, "a/b.txt", "b")
	writeFile(t, target, "c.txt", "c")

	root := filepath.Join(dir, "root")
	if err := os.Symlink(target, root); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := New(Options{Workers: 2})
	entries, err := s.Scan(context.Background(), root).Collect()
	require.NoError(t, err)

	got := byKey(entries)
	assert.Len(t, got, 3)
	assert.Equal(t, sum("b"), got["a/b.txt"].Hash)
	assert.True(t, got["a"].IsFolder())

	n, err := s.Count(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
