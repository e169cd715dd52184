package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/redpiler/internal/blocks"
)

var (
	// ErrNotCompiled is returned when a session is driven before Compile.
	ErrNotCompiled = errors.New("session has no compiled circuit")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("session closed")
)

// RuntimeErrorCode categorizes failures while a session runs.
type RuntimeErrorCode string

const (
	// ErrCodeInteraction means a queued interaction could not be applied.
	ErrCodeInteraction RuntimeErrorCode = "INTERACTION_FAILED"
	// ErrCodeRecorder means the recorder rejected flushed changes.
	ErrCodeRecorder RuntimeErrorCode = "RECORDER_FAILED"
)

// RuntimeError is a failure tied to a tick of a running session.
type RuntimeError struct {
	Code RuntimeErrorCode
	Tick int64
	// Pos is set for interaction failures.
	Pos *blocks.BlockPos
	Err error
}

func (e *RuntimeError) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s at tick %d (pos=%s): %v", e.Code, e.Tick, e.Pos, e.Err)
	}
	return fmt.Sprintf("%s at tick %d: %v", e.Code, e.Tick, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsInteractionError reports whether err is a failed interaction.
func IsInteractionError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeInteraction
}

// IsRecorderError reports whether err came from the recorder.
func IsRecorderError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeRecorder
}
