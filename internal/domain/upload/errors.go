package upload

import "errors"

var (
	ErrObjectNotFound = errors.New("upload not found")
	ErrInvalidKey     = errors.New("invalid upload key")
	ErrFileTooLarge   = errors.New("file exceeds maximum allowed size")
)
