package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned before any write when a request is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a referenced entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPartialBatch marks a multi-row operation that failed after its
	// target rows were selected.
	ErrPartialBatch = errors.New("partial batch failure")
)

// PartialBatchError reports a scoped write that stopped midway. Callers
// should retry the whole operation; re-fetching will not help.
type PartialBatchError struct {
	Op    string
	Done  int
	Total int
	Err   error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d writes applied before failure: %v", e.Op, e.Done, e.Total, e.Err)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPartialBatch) match.
func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatch
}
