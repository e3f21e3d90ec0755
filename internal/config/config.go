package config

import (
	"errors"
	"fmt"
	"foldersync/internal/delta"
	"foldersync/internal/executor"
	"foldersync/internal/queue"
	"foldersync/internal/scanner"
	"foldersync/internal/state"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	SourcePath      string        `mapstructure:"source_path"`
	ReplicaPath     string        `mapstructure:"replica_path"`
	LogPath         string        `mapstructure:"log_path"`
	IntervalSeconds int           `mapstructure:"interval_seconds"`
	StatePath       string        `mapstructure:"state_path"`
	DBPath          string        `mapstructure:"db_path"`
	DaemonPort      int           `mapstructure:"daemon_port"`
	BatchSize       int           `mapstructure:"batch_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	ScanWorkers     int           `mapstructure:"scan_workers"`
	HashCacheSize   int           `mapstructure:"hash_cache_size"`
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	IgnoreList      []string      `mapstructure:"ignore_list"`
	Watch           bool          `mapstructure:"watch"`
	VerifyPatched   bool          `mapstructure:"verify_patched"`
	ChunkBits       uint          `mapstructure:"chunk_bits"`
	ChunkMinSize    int           `mapstructure:"chunk_min_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var Default = Config{
	LogPath:         "foldersync.log",
	IntervalSeconds: 60,
	StatePath:       state.DefaultPath,
	DBPath:          "foldersync.db",
	DaemonPort:      9101,
	BatchSize:       executor.DefaultConfig().BatchSize,
	FlushInterval:   executor.DefaultConfig().FlushInterval,
	MaxAttempts:     executor.DefaultConfig().MaxAttempts,
	RetryDelay:      executor.DefaultConfig().RetryDelay,
	MaxConcurrency:  executor.DefaultConfig().MaxConcurrency,
	ScanWorkers:     scanner.DefaultWorkers(),
	HashCacheSize:   100_000,
	QueueCapacity:   queue.DefaultCapacity,
	IgnoreList:      []string{".DS_Store", "*.swp", "*.tmp"},
	ChunkBits:       delta.DefaultSplitBits,
	ChunkMinSize:    delta.DefaultMinSize,
	ShutdownTimeout: 10 * time.Second,
}

// Dir returns the default configuration directory, ~/.foldersync.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".foldersync"), nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_path", Default.LogPath)
	v.SetDefault("interval_seconds", Default.IntervalSeconds)
	v.SetDefault("state_path", Default.StatePath)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("batch_size", Default.BatchSize)
	v.SetDefault("flush_interval", Default.FlushInterval)
	v.SetDefault("max_attempts", Default.MaxAttempts)
	v.SetDefault("retry_delay", Default.RetryDelay)
	v.SetDefault("max_concurrency", Default.MaxConcurrency)
	v.SetDefault("scan_workers", Default.ScanWorkers)
	v.SetDefault("hash_cache_size", Default.HashCacheSize)
	v.SetDefault("queue_capacity", Default.QueueCapacity)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("watch", Default.Watch)
	v.SetDefault("verify_patched", Default.VerifyPatched)
	v.SetDefault("chunk_bits", Default.ChunkBits)
	v.SetDefault("chunk_min_size", Default.ChunkMinSize)
	v.SetDefault("shutdown_timeout", Default.ShutdownTimeout)

	// unset keys must still be known for env overrides to apply
	v.SetDefault("source_path", "")
	v.SetDefault("replica_path", "")
}

// Load reads config.yaml from dir (the default directory when empty), then
// FOLDERSYNC_ environment variables, on top of the defaults.
func Load(v *viper.Viper, dir string) (*Config, error) {
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	SetDefaults(v)

	v.SetEnvPrefix("FOLDERSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the paths and limits. The replica directory and the
// directory of the log file are created when missing.
func (c *Config) Validate() error {
	if c.SourcePath == "" || c.ReplicaPath == "" {
		return errors.New("source_path and replica_path are required")
	}

	src, err := filepath.Abs(c.SourcePath)
	if err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	rep, err := filepath.Abs(c.ReplicaPath)
	if err != nil {
		return fmt.Errorf("invalid replica path: %w", err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", src)
	}

	if src, err = resolve(src); err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}
	if rep, err = resolve(rep); err != nil {
		return fmt.Errorf("failed to resolve replica path: %w", err)
	}
	c.SourcePath, c.ReplicaPath = src, rep

	if src == rep {
		return errors.New("source and replica must be different directories")
	}
	if rel, err := filepath.Rel(src, rep); err == nil && filepath.IsLocal(rel) {
		return errors.New("replica must not be inside the source")
	}

	if err := os.MkdirAll(rep, 0755); err != nil {
		return fmt.Errorf("failed to create replica dir: %w", err)
	}

	if c.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogPath), 0755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
	}

	switch {
	case c.IntervalSeconds < 0:
		return errors.New("interval_seconds must be >= 0")
	case c.BatchSize <= 0:
		return errors.New("batch_size must be positive")
	case c.MaxConcurrency <= 0:
		return errors.New("max_concurrency must be positive")
	case c.MaxAttempts <= 0:
		return errors.New("max_attempts must be positive")
	case c.FlushInterval <= 0:
		return errors.New("flush_interval must be positive")
	case c.RetryDelay < 0:
		return errors.New("retry_delay must not be negative")
	}

	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *Config) Executor() executor.Config {
	return executor.Config{
		BatchSize:      c.BatchSize,
		FlushInterval:  c.FlushInterval,
		MaxAttempts:    c.MaxAttempts,
		RetryDelay:     c.RetryDelay,
		MaxConcurrency: c.MaxConcurrency,
	}
}

func (c *Config) DeltaParams() delta.Params {
	return delta.Params{SplitBits: c.ChunkBits, MinSize: c.ChunkMinSize}
}

// resolve evaluates symlinks in the longest existing prefix of p and keeps the
// missing tail as is.
func resolve(p string) (string, error) {
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		tail = append([]string{filepath.Base(p)}, tail...)
		p = parent
	}
}
