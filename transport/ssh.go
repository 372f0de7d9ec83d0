package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jonwraymond/targetconn/target"
)

// SSHDialer reaches targets through an SSH gateway. Every session gets its own
// SSH client, authenticated with the target's credentials, and a direct-tcpip
// channel to the target address. The session breaks when the SSH client does.
type SSHDialer struct {
	// Gateway is the "host:port" of the SSH server.
	Gateway string

	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration

	// HostKeyCallback verifies the gateway host key. Required.
	HostKeyCallback ssh.HostKeyCallback

	// Handshake, when set, runs over the tunnelled connection.
	Handshake HandshakeFunc
}

// Dial opens an SSH client to the gateway and tunnels to address.
func (d *SSHDialer) Dial(ctx context.Context, address string, creds *target.Credentials) (*Session, error) {
	if d.Gateway == "" {
		return nil, ErrNoGateway
	}
	if d.HostKeyCallback == nil {
		return nil, ErrHostKeyCallbackRequired
	}
	if creds == nil || creds.Username == "" {
		return nil, ErrCredentialsRequired
	}

	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: d.HostKeyCallback,
		Timeout:         d.Timeout,
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", d.Gateway)
	if err != nil {
		return nil, fmt.Errorf("transport: dial gateway %s: %w", d.Gateway, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = tcpConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, d.Gateway, cfg)
	if err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("transport: ssh handshake with %s: %w", d.Gateway, err)
	}
	_ = tcpConn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)

	conn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("transport: tunnel to %s via %s: %w", address, d.Gateway, err)
	}

	if d.Handshake != nil {
		if err := runHandshake(ctx, conn, creds, d.Handshake); err != nil {
			_ = conn.Close()
			_ = client.Close()
			return nil, err
		}
	}

	sess := NewSession(address, conn, func() error {
		return errors.Join(ignoreClosed(conn.Close()), ignoreClosed(client.Close()))
	})
	go func() {
		err := client.Wait()
		if err == nil {
			err = net.ErrClosed
		}
		sess.markBroken(err)
	}()
	return sess, nil
}

// ignoreClosed drops the error from closing something already closed.
func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// HostKeyCallback builds the gateway host key check. insecure disables it;
// otherwise keys are verified against knownHosts, defaulting to
// ~/.ssh/known_hosts when empty.
func HostKeyCallback(knownHosts string, insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		//nolint:gosec // caller opted out of host key checking
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if knownHosts == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("transport: locating home directory: %w", err)
		}
		knownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(knownHosts)
	if err != nil {
		return nil, fmt.Errorf("transport: loading known_hosts from %s: %w", knownHosts, err)
	}
	return cb, nil
}

var _ Dialer = (*SSHDialer)(nil)
