package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// Session is a live connection-oriented session to a target.
//
// I/O goes through Do, which serializes callers and watches for errors that
// mean the remote end went away. The first such error marks the session
// broken, closes it and fires every OnClose listener exactly once. A local
// Close never fires listeners: the owner closing its own session is not a
// disconnect.
type Session struct {
	address string
	conn    net.Conn
	closer  func() error

	ioMu    sync.Mutex
	pending []byte // bytes consumed by Ping, replayed on the next Read

	mu        sync.Mutex
	closed    bool
	cause     error
	listeners []func()
	closeErr  error
}

// NewSession wraps conn. closer releases everything the session owns; when
// nil, conn.Close is used.
func NewSession(address string, conn net.Conn, closer func() error) *Session {
	if closer == nil {
		closer = conn.Close
	}
	return &Session{
		address: address,
		conn:    conn,
		closer:  closer,
	}
}

// Address returns the address the session was dialled to.
func (s *Session) Address() string {
	return s.address
}

// OnClose registers fn to run when the transport detects the session was
// closed remotely. If that already happened, fn runs immediately.
func (s *Session) OnClose(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.cause != nil {
		s.mu.Unlock()
		fn()
		return
	}
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Err returns the error that broke the session, ErrSessionClosed after a
// local Close, or nil while the session is open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return s.cause
	}
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Do runs fn with exclusive access to the underlying connection. The context
// deadline, if any, is applied to the connection for the duration of fn.
func (s *Session) Do(ctx context.Context, fn func(conn net.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
		defer func() { _ = s.conn.SetDeadline(time.Time{}) }()
	}

	err := fn(&sessionConn{Conn: s.conn, s: s})
	if err != nil && isDisconnect(err) {
		s.markBroken(err)
	}
	return err
}

// Ping checks whether the remote end is still there without sending
// anything. It waits up to wait for the connection to report EOF or reset.
// Bytes that arrive meanwhile are kept and replayed to the next reader.
// Connections without deadline support only report breakage already seen.
func (s *Session) Ping(ctx context.Context, wait time.Duration) error {
	return s.Do(ctx, func(conn net.Conn) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return nil
		}
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

		buf := make([]byte, 1)
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
		}
		if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return err
	})
}

// Close closes the session. It is safe to call more than once; only the first
// call closes the underlying connection and its result is returned on every call.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	s.closed = true
	s.listeners = nil
	s.mu.Unlock()

	err := s.closer()

	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()
	return err
}

// markBroken records cause, closes the session and fires the listeners. It
// does nothing if the session was already closed locally or broken.
func (s *Session) markBroken(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cause = &DisconnectError{Address: s.address, Err: cause}
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	err := s.closer()
	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// sessionConn replays bytes buffered by Ping before reading from the wire.
type sessionConn struct {
	net.Conn
	s *Session
}

func (c *sessionConn) Read(p []byte) (int, error) {
	if len(c.s.pending) > 0 {
		n := copy(p, c.s.pending)
		c.s.pending = c.s.pending[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

// isDisconnect reports whether err means the remote end is gone.
func isDisconnect(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	default:
		return false
	}
}
