package daemon

import (
	"fmt"
	"foldersync/internal/logger"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// Watcher wakes the scheduler when something below the source changes.
// Bursts of events are collapsed into a single wake-up.
type Watcher struct {
	fw      *fsnotify.Watcher
	root    string
	ignored func(rel string) bool
	delay   time.Duration
	wakeCh  chan<- struct{}
	doneCh  chan struct{}
	stopped chan struct{}
}

func NewWatcher(root string, ignored func(rel string) bool, wakeCh chan<- struct{}) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		root:    root,
		ignored: ignored,
		delay:   debounceDelay,
		wakeCh:  wakeCh,
		doneCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.fw.Close()
		return err
	}

	go w.run()

	logger.Log.Info("watcher started",
		zap.String("dir", w.root))
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.isIgnored(path) {
			return filepath.SkipDir
		}

		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		logger.Log.Debug("watching directory",
			zap.String("path", path))
		return nil
	})
}

func (w *Watcher) isIgnored(path string) bool {
	if w.ignored == nil {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.ignored(filepath.ToSlash(rel))
}

func (w *Watcher) run() {
	defer close(w.stopped)

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.doneCh:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || w.isIgnored(event.Name) {
				continue
			}

			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", event.Name),
							zap.Error(err))
					}
				}
			}

			timer.Reset(w.delay)

		case <-timer.C:
			select {
			case w.wakeCh <- struct{}{}:
				logger.Log.Debug("source changed, waking scheduler")
			default:
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

func (w *Watcher) Stop() {
	select {
	case <-w.doneCh:
		return
	default:
	}

	close(w.doneCh)
	_ = w.fw.Close()
	<-w.stopped
}
