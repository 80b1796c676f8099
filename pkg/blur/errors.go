package blur

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned before any worker starts when the image,
	// kernel or thread count cannot be used.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWorkerFailure matches any *WorkerFailure via errors.Is.
	ErrWorkerFailure = errors.New("worker failure")
)

// WorkerFailure reports every band whose worker did not complete.
// Bands and Causes are parallel slices.
type WorkerFailure struct {
	Bands  []Band
	Causes []error
}

func (e *WorkerFailure) Error() string {
	parts := make([]string, len(e.Bands))
	for i, band := range e.Bands {
		parts[i] = fmt.Sprintf("%s: %v", band, e.Causes[i])
	}
	return fmt.Sprintf("%s in %d band(s): %s", ErrWorkerFailure, len(e.Bands), strings.Join(parts, "; "))
}

func (e *WorkerFailure) Is(target error) bool {
	return target == ErrWorkerFailure
}

func (e *WorkerFailure) Unwrap() []error {
	return e.Causes
}
