package model

import (
	"path"
	"strings"
	"time"
)

type EntryKind int

const (
	KindFile EntryKind = iota + 1
	KindFolder
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Entry is a file or folder found by a scan. Path is absolute while scanning;
// RelPath is the forward-slash path below the scanned root.
type Entry struct {
	Kind    EntryKind
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
	Hash    string
}

func NewFileEntry(path string, size int64, modTime time.Time, hash string) Entry {
	return Entry{
		Kind:    KindFile,
		Path:    path,
		Size:    size,
		ModTime: modTime,
		Hash:    hash,
	}
}

func NewFolderEntry(path string, modTime time.Time) Entry {
	return Entry{
		Kind:    KindFolder,
		Path:    path,
		ModTime: modTime,
	}
}

func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}

func (e Entry) IsFolder() bool {
	return e.Kind == KindFolder
}

// Key is the identity used for comparison and bookkeeping.
func (e Entry) Key() string {
	if e.RelPath != "" {
		return e.RelPath
	}
	return e.Path
}

// Depth counts the separators in the relative path, so top level entries are 0.
func (e Entry) Depth() int {
	return strings.Count(path.Clean(e.Key()), "/")
}

func (e Entry) WithRelPath(rel string) Entry {
	e.RelPath = rel
	return e
}
