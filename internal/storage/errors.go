package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an object or container does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnauthorized is returned when the account rejects the credentials.
	ErrUnauthorized = errors.New("storage: unauthorized")
	// ErrMalformedReference is returned when a blob reference does not
	// resolve to a container and object.
	ErrMalformedReference = errors.New("storage: malformed blob reference")
	// ErrInvalidText is returned when an object's content is not valid UTF-8.
	ErrInvalidText = errors.New("storage: content is not valid utf-8 text")
)

// OpError records the gateway operation and object a failure belongs to.
type OpError struct {
	Op        string
	Container string
	Object    string
	Err       error
}

func (e *OpError) Error() string {
	switch {
	case e.Container != "" && e.Object != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Container, e.Object, e.Err)
	case e.Container != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Container, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned by HTTPClientFetcher for non-2xx responses.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
