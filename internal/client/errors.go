package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Field, e.Message)
	case e.Message != "":
		return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
