package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyMethod is returned by Call when no method name is given.
var ErrEmptyMethod = errors.New("rpc: method name is required")

// TransportError is returned when a call produced no response: connection
// refused, DNS failure, timeout, context cancellation, or a body that could
// not be read.
type TransportError struct {
	Method string
	Args   map[string]any
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc: %s(%s): transport: %v", e.Method, formatArgs(e.Args), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline or client timeout.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) && t.Timeout() {
		return true
	}
	return false
}

// StatusError is wrapped by RemoteCallError for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// RemoteCallError is returned when a response arrived but its envelope
// signals failure: non-2xx status, a body that is not JSON, or no "ok" field.
type RemoteCallError struct {
	Method string
	Args   map[string]any
	// Status is the HTTP status code of the response.
	Status int
	// Body is the raw response body, verbatim.
	Body string
	// Reason is the server's "error" field when the body carried one.
	Reason string
	Err    error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("rpc: %s(%s) failed: %s", e.Method, formatArgs(e.Args), e.Body)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the raw server response body.
func (e *RemoteCallError) Diagnostic() string {
	return e.Body
}

// IsRemote reports whether err is (or wraps) a RemoteCallError.
func IsRemote(err error) bool {
	var re *RemoteCallError
	return errors.As(err, &re)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}
