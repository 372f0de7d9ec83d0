package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport operations.
var (
	ErrSessionClosed           = errors.New("transport: session is closed")
	ErrNoGateway               = errors.New("transport: ssh gateway is required")
	ErrCredentialsRequired     = errors.New("transport: credentials are required")
	ErrHostKeyCallbackRequired = errors.New("transport: ssh host key callback is required")
	ErrHandshake               = errors.New("transport: handshake failed")
)

// DisconnectError reports that the remote end of a session went away.
type DisconnectError struct {
	Address string
	Err     error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("transport: session to %s disconnected: %v", e.Address, e.Err)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}
