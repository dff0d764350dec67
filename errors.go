package asyncevents

import (
	"errors"
	"fmt"
)

// ErrUnhandledError is returned when "error" is emitted without listeners and
// without an error argument.
var ErrUnhandledError = errors.New("unhandled error event")

// ListenerError wraps the failure of a single listener during an emit
type ListenerError struct {
	Key        string
	ListenerID string
	Err        error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("event '%s' listener '%s': %v", e.Key, e.ListenerID, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered listener panic
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panicked: %v", e.Value)
}

// unhandledError builds the failure of an "error" emit nobody listens to.
func unhandledError(args []any) error {
	if len(args) == 0 || args[0] == nil {
		return ErrUnhandledError
	}
	if err, ok := args[0].(error); ok {
		return err
	}
	return fmt.Errorf("%w (%v)", ErrUnhandledError, args[0])
}
