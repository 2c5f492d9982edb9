// Package unix provides a client transport over Unix domain sockets.
package unix

import (
	"context"
	"net"
)

// ClientTransport dials a Unix socket. The address passed to Dial is the
// socket path unless SocketPath is set; the port is ignored.
type ClientTransport struct {
	SocketPath string
}

type ClientTransportConfig struct {
	SocketPath string // Path to the Unix socket file
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	return &ClientTransport{
		SocketPath: config.SocketPath,
	}
}

func (t *ClientTransport) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	path := t.SocketPath
	if path == "" {
		path = address
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", path)
}
