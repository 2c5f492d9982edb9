package rpc

import (
	"context"
)

// Dispatcher interprets one received body. Returning an error that wraps a
// TransportError halts the read pipeline; any other error is reported and
// the next message is read.
type Dispatcher interface {
	Invoke(ctx context.Context, body []byte) error
}

type DispatcherFunc func(ctx context.Context, body []byte) error

func (f DispatcherFunc) Invoke(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

type Middleware func(ctx context.Context, body []byte, next DispatcherFunc) error

func buildDispatchChain(middleware []Middleware, final DispatcherFunc) DispatcherFunc {

	// start with the final dispatcher
	chain := final

	// loop backwards so the first middleware runs first
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]

		next := chain
		chain = func(ctx context.Context, body []byte) error {
			return m(ctx, body, next)
		}
	}

	return chain
}

func ApplyDispatchChain(ctx context.Context, body []byte, middleware []Middleware, final DispatcherFunc) error {
	fn := buildDispatchChain(middleware, final)
	return fn(ctx, body)
}
