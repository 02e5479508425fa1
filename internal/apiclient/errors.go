package apiclient

import "fmt"

// ValidationError is a local, pre-network rejection (bad file extension,
// empty required id or question). It never reaches the backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RemoteError is a non-success HTTP response from the backend. Message is
// best-effort: the structured error body when present, then the HTTP status
// text, then a generic status-coded string.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError wraps a failure to reach the backend or to parse its
// response. Callers treat it the same as RemoteError: a displayed message.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
