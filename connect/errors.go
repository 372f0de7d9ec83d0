package connect

import (
	"errors"
	"fmt"
)

// ErrNilDialer is returned by New when no dialer is configured.
var ErrNilDialer = errors.New("connect: dialer is nil")

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	// TargetID is the descriptor's target id.
	TargetID string
	// Address is the resolved service locator, empty when resolution failed.
	Address string
	// Err is the underlying cause.
	Err error
}

func (e *ConnectError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("connect: target %q: %v", e.TargetID, e.Err)
	}
	return fmt.Sprintf("connect: target %q at %s: %v", e.TargetID, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
