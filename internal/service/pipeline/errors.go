package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRegion is returned when the caller names a region that is
	// not in the reference tables.
	ErrUnknownRegion = errors.New("pipeline: unknown region")

	// ErrUnknownCrop is returned when the caller names a crop that is not in
	// the reference tables.
	ErrUnknownCrop = errors.New("pipeline: unknown crop")

	// ErrPersistence is returned in strict persistence mode when the history
	// write fails after a successful run.
	ErrPersistence = errors.New("pipeline: history write failed")

	// ErrPanic marks a stage that panicked.
	ErrPanic = errors.New("pipeline: stage panicked")
)

// StageError reports which pipeline stage failed a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// guard runs fn, converting a returned error or a panic into a StageError.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()
	if ferr := fn(); ferr != nil {
		return &StageError{Stage: stage, Err: ferr}
	}
	return nil
}
