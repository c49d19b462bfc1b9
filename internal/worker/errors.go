package worker

import (
	"errors"

	"github.com/bobarin/vidweft/internal/models"
	"github.com/bobarin/vidweft/internal/timeline"
)

// stageError tags a render failure with the error code stored on the render.
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageErr(code string, err error) error {
	return &stageError{code: code, err: err}
}

// classifyError maps a render failure to its error code. Invalid input wins
// over the stage it surfaced in.
func classifyError(err error) string {
	if errors.Is(err, timeline.ErrInvalidInput) {
		return models.ErrorCodeInvalidInput
	}
	var se *stageError
	if errors.As(err, &se) {
		return se.code
	}
	return models.ErrorCodeInternal
}
