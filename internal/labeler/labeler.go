package labeler

import (
	"context"
	"fmt"
	"foldersync/internal/logger"
	"foldersync/internal/model"
	"foldersync/internal/scanner"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Label diffs a source scan against a replica scan and returns the tasks that
// converge the replica, in execution order: folder creates by ascending
// depth, then file creates and updates, then deletes by descending depth.
// A failure on either side aborts the pass and no tasks are returned.
func Label(ctx context.Context, sourceRoot string, source *scanner.Stream, replicaRoot string, replica *scanner.Stream) ([]model.SyncTask, error) {
	srcMap, err := materialize(ctx, sourceRoot, source)
	if err != nil {
		go drain(replica)
		return nil, fmt.Errorf("failed to enumerate source: %w", err)
	}

	repMap, err := materialize(ctx, replicaRoot, replica)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate replica: %w", err)
	}

	srcKeys := keySet(srcMap)
	repKeys := keySet(repMap)

	var tasks []model.SyncTask

	var newFolders []model.Entry
	for _, key := range sortedKeys(srcMap) {
		entry := srcMap[key]
		if !entry.IsFolder() {
			continue
		}
		if existing, ok := repMap[key]; !ok || !existing.IsFolder() {
			newFolders = append(newFolders, entry)
		}
	}
	sort.SliceStable(newFolders, func(i, j int) bool {
		return newFolders[i].Depth() < newFolders[j].Depth()
	})
	for _, entry := range newFolders {
		tasks = append(tasks, newTask(model.CommandCreate, entry))
	}

	for _, key := range sortedKeys(srcMap) {
		entry := srcMap[key]
		if !entry.IsFile() {
			continue
		}

		existing, ok := repMap[key]
		switch {
		case !ok || !existing.IsFile():
			tasks = append(tasks, newTask(model.CommandCreate, entry))
		case entry.Hash != existing.Hash || entry.ModTime.After(existing.ModTime):
			tasks = append(tasks, newTask(model.CommandUpdate, entry))
		}
	}

	var stale []model.Entry
	for _, key := range repKeys.Difference(srcKeys).ToSlice() {
		stale = append(stale, repMap[key])
	}
	sort.Slice(stale, func(i, j int) bool {
		if di, dj := stale[i].Depth(), stale[j].Depth(); di != dj {
			return di > dj
		}
		return stale[i].Key() < stale[j].Key()
	})
	for _, entry := range stale {
		tasks = append(tasks, model.SyncTask{
			Command: model.CommandDelete,
			Entry:   entry,
		})
	}

	logger.Log.Debug("labeled diff",
		zap.Int("source_entries", len(srcMap)),
		zap.Int("replica_entries", len(repMap)),
		zap.Int("tasks", len(tasks)))

	return tasks, nil
}

func newTask(cmd model.SyncCommand, entry model.Entry) model.SyncTask {
	return model.SyncTask{
		Command:    cmd,
		Entry:      entry,
		SourcePath: entry.Path,
	}
}

// materialize drains the stream into a map keyed by the path relative to
// root. Later duplicates replace earlier ones.
func materialize(ctx context.Context, root string, stream *scanner.Stream) (map[string]model.Entry, error) {
	entries := make(map[string]model.Entry)

	for {
		select {
		case <-ctx.Done():
			go drain(stream)
			return nil, ctx.Err()
		case e, ok := <-stream.C:
			if !ok {
				if err := stream.Err(); err != nil {
					return nil, err
				}
				return entries, nil
			}

			rel, ok := relative(root, e)
			if !ok {
				continue
			}
			entries[rel] = e.WithRelPath(rel)
		}
	}
}

func relative(root string, e model.Entry) (string, bool) {
	rel := e.RelPath
	if rel == "" {
		r, err := filepath.Rel(root, e.Path)
		if err != nil {
			logger.Log.Warn("entry outside of root, skipping",
				zap.String("root", root),
				zap.String("path", e.Path))
			return "", false
		}
		rel = r
	}

	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return "", false
	}

	return rel, true
}

func drain(stream *scanner.Stream) {
	for range stream.C {
	}
}

func keySet(m map[string]model.Entry) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSet[string]()
	for k := range m {
		s.Add(k)
	}
	return s
}

func sortedKeys(m map[string]model.Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
