package abg

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every input error that blocks an analysis.
var ErrValidation = errors.New("validation failed")

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InferenceError wraps a classifier failure. Nothing was saved.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return fmt.Sprintf("classify sample: %v", e.Err) }

func (e *InferenceError) Unwrap() error { return e.Err }

// PersistenceError wraps a results log failure. The analysis result was
// computed and is returned alongside it.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("save result: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
