package rpc

import (
	"context"
	"net"

	"github.com/kbirk/yarmi/pkg/rpc/tcp"
)

// ClientTransport establishes the byte stream for an outbound connection.
type ClientTransport interface {
	Dial(ctx context.Context, address string, port uint16) (net.Conn, error)
}

// ClientTransportFunc adapts a function to ClientTransport.
type ClientTransportFunc func(ctx context.Context, address string, port uint16) (net.Conn, error)

func (f ClientTransportFunc) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	return f(ctx, address, port)
}

func defaultClientTransport() ClientTransport {
	return tcp.NewClientTransport(tcp.ClientTransportConfig{
		NoDelay: true,
	})
}
