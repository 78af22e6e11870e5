package robot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every action or stream operation
	// invoked before Connect has succeeded.
	ErrNotConnected = errors.New("not connected to robot")

	// ErrBusy is returned when a posture operation is issued while a
	// previous one is still resolving.
	ErrBusy = errors.New("a posture operation is already in progress")
)

// ConnectError reports a failed connection attempt. Fatal marks failures of
// the underlying link that cannot be recovered without a process restart;
// callers must not retry those.
type ConnectError struct {
	Fatal bool
	Err   error
}

func (e *ConnectError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("connect failed (fatal, restart required): %v", e.Err)
	}
	return fmt.Sprintf("connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ActionError reports a backend failure while executing an action.
type ActionError struct {
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// SubscribeError reports a failure to establish a stream subscription.
type SubscribeError struct {
	Kind StreamKind
	Err  error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe to %s stream failed: %v", e.Kind, e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }
