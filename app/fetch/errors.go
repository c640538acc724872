package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchError is a page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the server answered 404.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type attemptError struct {
	statusCode int
	transient  bool
	err        error
}

func (e *attemptError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("HTTP %d %s", e.statusCode, http.StatusText(e.statusCode))
}

func (e *attemptError) Unwrap() error {
	return e.err
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts, 5xx and 429 responses.
func IsTransient(err error) bool {
	var ae *attemptError
	if errors.As(err, &ae) {
		return ae.transient
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
