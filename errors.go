package brainwave

import (
	"fmt"

	"github.com/pkg/errors"
)

// errors
var (
	// ErrStreamNotFound is returned by Start when no stream of the configured
	// type could be resolved in time.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrSampleTimeout ends a session when the source went quiet or ended.
	ErrSampleTimeout = errors.New("no sample within timeout")
	// ErrValidation ends a session when a sample has the wrong shape.
	ErrValidation = errors.New("invalid sample")
	// ErrWorkerJoinTimeout is returned by Stop when the worker did not exit
	// in time. The pipeline refuses to start again afterwards.
	ErrWorkerJoinTimeout = errors.New("worker did not stop in time")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("pipeline closed")
)

// ValidationError reports a sample whose channel count is wrong.
type ValidationError struct {
	Got  int
	Want int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sample: %d channels, want %d", e.Got, e.Want)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrorKind maps err to a short stable label, "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, ErrSampleTimeout):
		return "sample_timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrWorkerJoinTimeout):
		return "worker_join_timeout"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "source"
	}
}
