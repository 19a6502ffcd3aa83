package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a local precondition, such as a
	// positive batch size, is violated.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownSourceStrategy is returned when a configured source does not
	// resolve to a registered enumeration strategy.
	ErrUnknownSourceStrategy = errors.New("unknown source strategy")
)

// RemoteCallError wraps any failure returned by the remote API.
type RemoteCallError struct {
	// Op is the API call that failed, e.g. ListServices
	Op string
	// Parent is set when the call was scoped to a single parent
	Parent ParentID
	Err    error
}

func (e *RemoteCallError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (parent %s): %v", e.Op, e.Parent, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
