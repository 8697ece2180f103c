package maxxisun

import (
	"errors"
	"fmt"
)

var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned when the API answers with anything but 200 or 202.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s %s failed, expected status code 200 or 202, got %d", e.Method, e.URL, e.Code)
}

// TransportError wraps failures below the HTTP status layer, such as refused
// connections, TLS handshake errors and timeouts.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s %s failed: %s", e.Method, e.URL, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
