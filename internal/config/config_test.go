package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, ".cache/folder_state.json", cfg.StatePath)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.GreaterOrEqual(t, cfg.ScanWorkers, 1)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "source_path: /data/src\nreplica_path: /data/rep\ninterval_seconds: 5\nflush_interval: 100ms\nignore_list: [\".git\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("FOLDERSYNC_MAX_CONCURRENCY", "8")

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)

	assert.Equal(t, "/data/src", cfg.SourcePath)
	assert.Equal(t, "/data/rep", cfg.ReplicaPath)
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.Equal(t, 100*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, []string{".git"}, cfg.IgnoreList)
	assert.Equal(t, 8, cfg.MaxConcurrency)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))

	valid := func() *Config {
		c := Default
		c.SourcePath = src
		c.ReplicaPath = filepath.Join(dir, "rep", "nested")
		c.LogPath = filepath.Join(dir, "logs", "sync.log")
		return &c
	}

	c := valid()
	require.NoError(t, c.Validate())
	assert.DirExists(t, c.ReplicaPath)
	assert.DirExists(t, filepath.Join(dir, "logs"))

	c = valid()
	c.SourcePath = filepath.Join(dir, "missing")
	assert.Error(t, c.Validate())

	c = valid()
	c.ReplicaPath = filepath.Join(src, "inner")
	assert.Error(t, c.Validate())

	c = valid()
	c.IntervalSeconds = -1
	assert.Error(t, c.Validate())

	c = valid()
	c.BatchSize = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.ReplicaPath = ""
	assert.Error(t, c.Validate())
}

func TestValidateResolvesSymlinkedRoots(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))

	link := filepath.Join(dir, "src-link")
	if err := os.Symlink(src, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	want, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)

	c := Default
	c.SourcePath = link
	c.ReplicaPath = filepath.Join(dir, "rep")
	c.LogPath = ""
	require.NoError(t, c.Validate())
	assert.Equal(t, want, c.SourcePath)

	// a replica reached through the link still lands inside the source
	c = Default
	c.SourcePath = src
	c.ReplicaPath = filepath.Join(link, "inner")
	c.LogPath = ""
	assert.Error(t, c.Validate())
	assert.NoDirExists(t, filepath.Join(src, "inner"))
}
