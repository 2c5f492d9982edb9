package rpc

import (
	"context"
	"fmt"
	"net"
)

type ClientConfig struct {
	ConnConfig
	Transport ClientTransport // Defaults to TCP with Nagle's algorithm disabled
}

// Client is the outbound connection variant. The transport is established
// with Connect or ConnectAsync after construction.
type Client struct {
	*Conn
	transport ClientTransport
}

func NewClient(conf ClientConfig) *Client {
	transport := conf.Transport
	if transport == nil {
		transport = defaultClientTransport()
	}
	return &Client{
		Conn:      newConn(RoleClient, conf.ConnConfig, nil),
		transport: transport,
	}
}

func (c *Client) dial(ctx context.Context, address string, port uint16) error {
	c.logDebug(fmt.Sprintf("Connecting to %s:%d", address, port))
	nc, err := c.transport.Dial(ctx, address, port)
	if err != nil {
		return &ConnectError{Address: address, Port: port, Err: err}
	}
	if err := c.attach(nc); err != nil {
		if nc != nil {
			nc.Close()
		}
		return &ConnectError{Address: address, Port: port, Err: err}
	}
	c.logInfo("Connected to " + nc.RemoteAddr().String())
	return nil
}

// Connect establishes the transport and starts the read pipeline. It fails
// with a *ConnectError.
func (c *Client) Connect(ctx context.Context, address string, port uint16) error {
	if err := c.dial(ctx, address, port); err != nil {
		c.logError("Encountered error: " + err.Error())
		return err
	}
	return c.Start()
}

// ConnectAsync establishes the transport without blocking and reports the
// outcome to completion, which receives nil or a *ConnectError. The caller
// starts the read pipeline with Start once connected.
func (c *Client) ConnectAsync(ctx context.Context, address string, port uint16, completion func(error)) {
	go func() {
		err := c.dial(ctx, address, port)
		if err != nil {
			c.logError("Encountered error: " + err.Error())
		}
		if completion != nil {
			completion(err)
		}
	}()
}

// Disconnect closes the transport.
func (c *Client) Disconnect() error {
	return c.Close()
}

// LocalAddr returns the local end of the established transport, or nil.
func (c *Client) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil
	}
	return c.nc.LocalAddr()
}
