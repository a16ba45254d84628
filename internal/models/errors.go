package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a render failure.
type ErrorKind string

const (
	ErrInputValidation ErrorKind = "input_validation"
	ErrRetrieval       ErrorKind = "retrieval"
	ErrSynthesis       ErrorKind = "synthesis"
	ErrConcatenation   ErrorKind = "concatenation"
	ErrDurationProbe   ErrorKind = "duration_probe"
	ErrMux             ErrorKind = "mux"
	ErrValidation      ErrorKind = "validation"
)

// RenderError carries the failure kind and the stage it happened in.
type RenderError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func NewRenderError(kind ErrorKind, stage Stage, err error) *RenderError {
	return &RenderError{Kind: kind, Stage: stage, Err: err}
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// KindOf returns the render error kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsInputError reports whether err is a request validation failure.
func IsInputError(err error) bool {
	return KindOf(err) == ErrInputValidation
}
