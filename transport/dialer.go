package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jonwraymond/targetconn/target"
)

// Dialer opens sessions to resolved target addresses.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Dial must honor cancellation and deadlines.
//   - Ownership: the caller owns the returned Session and must Close it.
type Dialer interface {
	// Dial opens a session to address ("host:port"). creds is nil when the
	// target carries no credentials.
	Dial(ctx context.Context, address string, creds *target.Credentials) (*Session, error)
}

// HandshakeFunc runs a protocol handshake over a freshly dialled connection.
type HandshakeFunc func(ctx context.Context, conn net.Conn, creds *target.Credentials) error

// TCPDialer dials targets directly over TCP.
type TCPDialer struct {
	// Timeout bounds the TCP connect. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Handshake, when set, runs before the session is handed out. A failing
	// handshake closes the connection.
	Handshake HandshakeFunc
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, address string, creds *target.Credentials) (*Session, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	if d.Handshake != nil {
		if err := runHandshake(ctx, conn, creds, d.Handshake); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	sess := NewSession(address, conn, nil)
	return sess, nil
}

func runHandshake(ctx context.Context, conn net.Conn, creds *target.Credentials, h HandshakeFunc) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}
	if err := h(ctx, conn, creds); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return nil
}

var _ Dialer = (*TCPDialer)(nil)
