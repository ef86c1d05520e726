package image

import (
	"errors"
	"fmt"
)

var (
	ErrImageNotFound          = errors.New("image not found")
	ErrProcessedURLRequired   = errors.New("processedUrl is required when status is completed")
	ErrProcessedURLNotAllowed = errors.New("processedUrl can only be set together with status completed")
	ErrCreateCompleted        = errors.New("an image cannot be created as completed")
	ErrNotPending             = errors.New("image is not pending")
	ErrDispatchUnavailable    = errors.New("server-side processing is not configured")
	ErrQueueFull              = errors.New("processing queue is full")
)

// TransitionError reports a status change that would move the lifecycle backwards.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %q to %q", e.From, e.To)
}
