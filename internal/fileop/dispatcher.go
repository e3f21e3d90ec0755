package fileop

import (
	"context"
	"fmt"
	"foldersync/internal/delta"
)

// DiagnoseFunc is called with the replica path after an update fails.
type DiagnoseFunc func(ctx context.Context, path string)

type Options struct {
	Params delta.Params
	// VerifyPatched checks the rebuilt file against the source hash before it
	// replaces the replica.
	VerifyPatched bool
	Diagnose      DiagnoseFunc
}

type Dispatcher struct {
	opts Options
}

func NewDispatcher(opts Options) *Dispatcher {
	return &Dispatcher{opts: opts}
}

// Dispatch performs op with the handler for its kind.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch op.Kind {
	case CreateFile:
		return d.createFile(ctx, op.Source, op.Destination)
	case CreateFolder:
		return d.createFolder(op.Destination)
	case Delete:
		return d.delete(op.Destination)
	case UpdateFile:
		return d.updateFile(ctx, op.Source, op.Destination)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op.Kind)
	}
}
