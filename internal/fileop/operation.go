package fileop

import (
	"fmt"
	"foldersync/internal/model"
	"path/filepath"
)

type Kind int

const (
	CreateFile Kind = iota + 1
	CreateFolder
	Delete
	UpdateFile
)

func (k Kind) String() string {
	switch k {
	case CreateFile:
		return "create-file"
	case CreateFolder:
		return "create-folder"
	case Delete:
		return "delete"
	case UpdateFile:
		return "update-file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Operation is a filesystem change to perform on the replica. Source is only
// set for CreateFile and UpdateFile.
type Operation struct {
	Kind        Kind
	Source      string
	Destination string
}

func (o Operation) String() string {
	if o.Source == "" {
		return fmt.Sprintf("%s %s", o.Kind, o.Destination)
	}
	return fmt.Sprintf("%s %s -> %s", o.Kind, o.Source, o.Destination)
}

// FromTask maps a labeled task onto the operation that applies it below
// replicaRoot.
func FromTask(task model.SyncTask, replicaRoot string) (Operation, error) {
	dst := filepath.Join(replicaRoot, filepath.FromSlash(task.Key()))

	switch task.Command {
	case model.CommandDelete:
		return Operation{Kind: Delete, Destination: dst}, nil

	case model.CommandCreate:
		if task.Entry.IsFolder() {
			return Operation{Kind: CreateFolder, Destination: dst}, nil
		}
		return Operation{Kind: CreateFile, Source: task.SourcePath, Destination: dst}, nil

	case model.CommandUpdate:
		if task.Entry.IsFile() {
			return Operation{Kind: UpdateFile, Source: task.SourcePath, Destination: dst}, nil
		}
	}

	return Operation{}, fmt.Errorf("%w: %s %s", ErrUnknownOperation, task.Command, task.Entry.Kind)
}
