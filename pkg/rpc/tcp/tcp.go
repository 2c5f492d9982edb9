// Package tcp provides the TCP client transport, optionally secured with TLS.
package tcp

import (
	"context"
	"net"
	"strconv"
	"time"
)

// setNoDelay sets the TCP_NODELAY option on a TCP connection
func setNoDelay(conn net.Conn, noDelay bool) error {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(noDelay)
	}
	return nil
}

// ConfigureAccepted applies the same socket options to a connection accepted
// by an external listener.
func ConfigureAccepted(conn net.Conn, noDelay bool) error {
	return setNoDelay(conn, noDelay)
}

// ClientTransport dials TCP connections
type ClientTransport struct {
	NoDelay     bool
	DialTimeout time.Duration
	KeepAlive   time.Duration
	TLS         *TLSConfig
}

type ClientTransportConfig struct {
	NoDelay     bool          // Disable Nagle's algorithm for better latency
	DialTimeout time.Duration // 0 for no timeout beyond the context
	KeepAlive   time.Duration // 0 for the net package default, negative to disable
	TLS         *TLSConfig    // nil for plain TCP
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	return &ClientTransport{
		NoDelay:     config.NoDelay,
		DialTimeout: config.DialTimeout,
		KeepAlive:   config.KeepAlive,
		TLS:         config.TLS,
	}
}

func (t *ClientTransport) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   t.DialTimeout,
		KeepAlive: t.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}

	// Set TCP_NODELAY option
	if err := setNoDelay(conn, t.NoDelay); err != nil {
		conn.Close()
		return nil, err
	}

	if t.TLS == nil {
		return conn, nil
	}
	return t.TLS.handshake(ctx, conn, address)
}
