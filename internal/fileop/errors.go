package fileop

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSource    = errors.New("source file does not exist")
	ErrUnknownOperation = errors.New("unknown operation")
)

type Phase string

const (
	PhaseSignature Phase = "signature"
	PhaseDelta     Phase = "delta"
	PhaseApply     Phase = "apply"
	PhaseCommit    Phase = "commit"
)

// PhaseError names the step of a delta update that failed.
type PhaseError struct {
	Phase Phase
	Path  string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("update %s failed during %s: %v", e.Path, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
