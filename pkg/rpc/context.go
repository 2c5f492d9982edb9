package rpc

import (
	"context"
)

type connKey struct{}

type sharedKey struct{}

// NewContextWithConn returns a context carrying c. Dispatchers receive such a
// context so they can reply on the connection that delivered the message.
func NewContextWithConn(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

func ConnFromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connKey{}).(*Conn)
	return c
}

// NewContextWithShared returns a context carrying server wide state.
func NewContextWithShared(ctx context.Context, shared any) context.Context {
	return context.WithValue(ctx, sharedKey{}, shared)
}

// SharedFromContext returns the server wide state a session was created with,
// or nil for outbound connections.
func SharedFromContext(ctx context.Context) any {
	return ctx.Value(sharedKey{})
}
