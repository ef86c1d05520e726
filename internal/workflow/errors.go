package workflow

import "fmt"

// UploadError reports a failed upload of the original or the processed file.
type UploadError struct {
	// Stage is "original" or "processed".
	Stage string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ProcessingError reports a failed background removal for a created record.
type ProcessingError struct {
	ImageID int64
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("remove background for image %d: %v", e.ImageID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
