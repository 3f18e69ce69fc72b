package db

import (
	"errors"
	"fmt"
)

// Sentinel errors for handle state classification.
var (
	// ErrNotOpen matches any operation attempted on a handle that is not open.
	ErrNotOpen = errors.New("not open")
	// ErrAlreadyOpen matches an Open on a handle that is already open.
	ErrAlreadyOpen = errors.New("already open")
)

// Handle kinds reported in errors.
const (
	ResourceConnection = "connection"
	ResourceStatement  = "statement"
)

// InvalidStateError reports local misuse of a handle. No remote call was made.
type InvalidStateError struct {
	// Resource is ResourceConnection or ResourceStatement.
	Resource string
	// Op is the attempted operation.
	Op string
	// Err is ErrNotOpen or ErrAlreadyOpen.
	Err error
}

func (e *InvalidStateError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %s %v", e.Op, e.Resource, e.Err)
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}

// ResourceError reports an attempt to acquire a connection that is
// already held by the handle.
type ResourceError struct {
	Resource string
	Bucket   string
	File     string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s to %s/%s already open", e.Resource, e.Bucket, e.File)
}

// Is matches ErrAlreadyOpen.
func (e *ResourceError) Is(target error) bool {
	return target == ErrAlreadyOpen
}

func notOpen(resource, op string) error {
	return &InvalidStateError{Resource: resource, Op: op, Err: ErrNotOpen}
}
