//go:build linux

package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Defaults chosen so a dead vehicle link surfaces within roughly twenty
// seconds even when the bridge has nothing to send.
const (
	defaultKeepAliveIdle     = 5 * time.Second
	defaultKeepAliveInterval = 5 * time.Second
	defaultKeepAliveCount    = 3
	defaultUserTimeout       = 10 * time.Second
)

// TCPDialer dials vehicle port sockets with keepalive probes and a bounded
// retransmission window.
//
// Vehicles disappear ungracefully (power cut, e-stop chain, wifi roam), and
// without TCP_USER_TIMEOUT a command write to a dead peer can sit in the
// retransmission queue for minutes before the kernel reports a failure.
//
// Satisfies the session layer's Dialer interface.
type TCPDialer struct {
	keepAlive   net.KeepAliveConfig
	userTimeout time.Duration
	logger      *slog.Logger
}

// TCPDialerOption configures optional TCPDialer parameters.
type TCPDialerOption func(*TCPDialer)

// WithKeepAlive overrides the keepalive probe schedule. idle is the quiet
// time before the first probe, interval the gap between probes, count the
// number of unanswered probes before the connection is declared dead.
func WithKeepAlive(idle, interval time.Duration, count int) TCPDialerOption {
	return func(d *TCPDialer) {
		d.keepAlive = net.KeepAliveConfig{
			Enable:   true,
			Idle:     idle,
			Interval: interval,
			Count:    count,
		}
	}
}

// WithUserTimeout overrides how long unacknowledged transmit data may
// linger before the kernel fails the connection.
func WithUserTimeout(timeout time.Duration) TCPDialerOption {
	return func(d *TCPDialer) {
		d.userTimeout = timeout
	}
}

// NewTCPDialer creates a dialer with production socket defaults.
func NewTCPDialer(logger *slog.Logger, opts ...TCPDialerOption) *TCPDialer {
	if logger == nil {
		logger = slog.Default()
	}

	d := &TCPDialer{
		keepAlive: net.KeepAliveConfig{
			Enable:   true,
			Idle:     defaultKeepAliveIdle,
			Interval: defaultKeepAliveInterval,
			Count:    defaultKeepAliveCount,
		},
		userTimeout: defaultUserTimeout,
		logger:      logger.With(slog.String("component", "netio.dialer")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DialContext connects to a vehicle port. The caller bounds the attempt
// through ctx; no internal timeout is layered on top.
func (d *TCPDialer) DialContext(
	ctx context.Context,
	network, address string,
) (net.Conn, error) {
	nd := net.Dialer{
		KeepAliveConfig: d.keepAlive,
		Control: func(_, _ string, c syscall.RawConn) error {
			return setDialOpts(c, d.userTimeout)
		},
	}

	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	d.logger.Debug("connection established",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("local", conn.LocalAddr().String()),
	)

	return conn, nil
}

// setDialOpts configures socket options for vehicle TCP links.
// TCP_USER_TIMEOUT caps how long transmitted data may stay unacknowledged
// before the kernel errors the socket; there is no portable knob for it.
func setDialOpts(c syscall.RawConn, userTimeout time.Duration) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)

		if sockErr = unix.SetsockoptInt(
			intFD, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT,
			int(userTimeout.Milliseconds()),
		); sockErr != nil {
			sockErr = fmt.Errorf("set TCP_USER_TIMEOUT: %w", sockErr)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}
