package rpc

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/kbirk/yarmi/pkg/frame"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotConnected     = errors.New("connection is not established")
	ErrAlreadyConnected = errors.New("connection is already established")
	ErrAlreadyStarted   = errors.New("read pipeline is already running")
	ErrWriteQueueFull   = errors.New("write queue is full")
	ErrNilConn          = errors.New("nil net.Conn")

	// Re-exported so callers only need this package to classify faults.
	ErrMalformedHeader = frame.ErrMalformedHeader
	ErrFrameTooLarge   = frame.ErrFrameTooLarge
)

// TransportError is a socket level failure: an I/O error, a short read or
// write, or an undecodable header. It halts the direction it occurred on.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConnectError is returned when an outbound connection cannot be
// established.
type ConnectError struct {
	Address string
	Port    uint16
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port))), e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// DispatchError wraps a failure raised while a dispatcher interpreted a
// body. It is reported but does not stop the read pipeline.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "dispatch: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a TransportError.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

func shortIO(op string, n int, want int, err error) *TransportError {
	if err == nil {
		err = fmt.Errorf("short transfer, %d of %d bytes", n, want)
	}
	return &TransportError{Op: op, Err: err}
}
