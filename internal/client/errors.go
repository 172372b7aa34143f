package client

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is returned when a 200 reply lacks the expected JSON fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRejected is returned when the device answers a login with a non-200 code.
	ErrRejected = errors.New("login rejected")
)

// StatusError reports a reply whose HTTP status was not 200.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status: %d", e.Op, e.Code)
}

// StatusCode returns the HTTP status carried by err, or 0 when the request
// never got a reply.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
