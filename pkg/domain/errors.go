package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run id cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrInvalidRecord is returned when a conversation record cannot start a run.
var ErrInvalidRecord = errors.New("invalid conversation record")

// ErrEmptyGeneration is returned when a model answered without usable content.
var ErrEmptyGeneration = errors.New("model returned no content")

// ErrInvariant is returned when a pipeline state breaks one of its invariants.
// It always indicates a defect in the engine, never a model failure.
var ErrInvariant = errors.New("pipeline invariant violated")

// ModelError wraps a failed model call for a given stage.
// Nodes substitute a fallback value whenever they see one.
type ModelError struct {
	Stage Stage
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call for %s failed: %v", e.Stage, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// StorageError wraps a failed backend read or write for a key.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage of %q failed: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError is the only error that makes a run end in the failed status.
type PersistenceError struct {
	RunID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist run %s: %v", e.RunID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
