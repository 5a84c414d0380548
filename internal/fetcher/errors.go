package fetcher

import "fmt"

// TransportError means the server could not be reached or the response could
// not be read. It is never retried.
type TransportError struct {
	URL     string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// StatusError is returned when upstream kept answering with a non-success
// status and the caller (or retry policy) stopped asking.
type StatusError struct {
	URL        string
	StatusCode int
	Attempts   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
}
