package rpc

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/kbirk/yarmi/pkg/frame"
	"github.com/kbirk/yarmi/pkg/log"
)

const (
	RoleClient  = "client"
	RoleSession = "session"
)

// ProtocolErrorHandler is invoked when a dispatcher detects an application
// level fault such as an unknown call id or a version mismatch.
type ProtocolErrorHandler func(c *Conn, callID uint8, versionID uint8, msg string)

// ConnConfig is shared by outbound clients and inbound sessions.
type ConnConfig struct {
	Dispatcher           Dispatcher
	Middleware           []Middleware
	ErrHandler           func(error)
	ProtocolErrorHandler ProtocolErrorHandler
	Logger               log.Logger
	Metrics              *Metrics
	MaxRecvMessageSize   uint32 // Maximum received body size in bytes (0 for no limit)
	MaxSendMessageSize   uint32 // Maximum sent buffer size in bytes (0 for no limit)
	MaxQueuedWrites      int    // Buffers allowed behind the in-flight write (0 for no limit)
	OverflowPolicy       OverflowPolicy
}

// Conn owns one stream socket, its read pipeline and its write queue.
type Conn struct {
	id       string
	role     string
	conf     ConnConfig
	dispatch DispatcherFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	nc       net.Conn
	pipeline *readPipeline
	queue    *writeQueue
	err      error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(role string, conf ConnConfig, shared any) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		role: role,
		conf: conf,
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	if shared != nil {
		ctx = NewContextWithShared(ctx, shared)
	}
	c.ctx = NewContextWithConn(ctx, c)
	c.cancel = cancel

	if conf.Dispatcher != nil {
		c.dispatch = buildDispatchChain(conf.Middleware, conf.Dispatcher.Invoke)
	}
	return c
}

func (c *Conn) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(c.prefix() + msg)
	}
}

func (c *Conn) logInfo(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Info(c.prefix() + msg)
	}
}

func (c *Conn) logWarn(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Warn(c.prefix() + msg)
	}
}

func (c *Conn) logError(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error(c.prefix() + msg)
	}
}

func (c *Conn) prefix() string {
	return c.role + " " + c.id + ": "
}

// attach binds the established transport and builds the pipelines around it.
func (c *Conn) attach(nc net.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if c.nc != nil {
		return ErrAlreadyConnected
	}
	if nc == nil {
		return ErrNilConn
	}

	c.nc = nc
	c.pipeline = newReadPipeline(nc, readPipelineConfig{
		maxBody:  c.conf.MaxRecvMessageSize,
		dispatch: c.invoke,
		onFault:  c.handleFault,
		onFrame: func(n int) {
			c.conf.Metrics.frameRead(c.role, n)
		},
		closed: c.closed.Load,
	})
	c.queue = newWriteQueue(nc, writeQueueConfig{
		limit:   c.conf.MaxQueuedWrites,
		policy:  c.conf.OverflowPolicy,
		onFault: c.handleFault,
		onWritten: func(n int) {
			c.conf.Metrics.written(c.role, n)
		},
		onDropped: func() {
			c.conf.Metrics.dropped(c.role)
			c.logWarn("write queue full, dropped oldest buffer")
		},
		onDepth: func(delta int) {
			c.conf.Metrics.queueDelta(c.role, delta)
		},
	})
	return nil
}

func (c *Conn) parts() (*readPipeline, *writeQueue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline, c.queue
}

// ID identifies the connection in logs.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Role() string {
	return c.role
}

func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil
	}
	return c.nc.RemoteAddr()
}

// Start begins, or resumes after Stop, the read pipeline and any writes
// paused by Stop. A dispatcher must not call Start after Stop on its own
// connection.
func (c *Conn) Start() error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	pipeline, queue := c.parts()
	if pipeline == nil {
		return ErrNotConnected
	}
	if err := pipeline.start(); err != nil {
		return err
	}
	queue.resume()
	c.logDebug("read pipeline started")
	return nil
}

// Stop cancels the pending read and pauses the write queue once the
// in-flight write completes. The transport stays open. Stopping in the
// middle of a frame leaves the stream unaligned.
func (c *Conn) Stop() {
	pipeline, queue := c.parts()
	if pipeline == nil {
		return
	}
	queue.pause()
	pipeline.stop()
	c.logDebug("read pipeline stopping")
}

// Close closes the transport and drops queued writes. Only the first call
// has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		nc, queue := c.nc, c.queue
		c.mu.Unlock()

		c.cancel()
		if queue != nil {
			queue.close()
		}
		if nc != nil {
			c.closeErr = nc.Close()
		}
		close(c.done)
		c.logDebug("connection closed")
	})
	return c.closeErr
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the first transport fault observed on the connection.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ReadState reports the read pipeline position.
func (c *Conn) ReadState() ReadState {
	pipeline, _ := c.parts()
	if pipeline == nil {
		return Idle
	}
	return pipeline.readState()
}

// Wait blocks until the read pipeline has exited and no write is in flight.
func (c *Conn) Wait() {
	pipeline, queue := c.parts()
	if pipeline == nil {
		return
	}
	pipeline.wait()
	queue.wait()
}

// Send queues a buffer that already carries its frame header. The buffer
// must not be modified afterwards. Buffers reach the wire in call order.
func (c *Conn) Send(buf []byte) error {
	if c.conf.MaxSendMessageSize > 0 && uint64(len(buf)) > uint64(c.conf.MaxSendMessageSize) {
		return fmt.Errorf("message size %d exceeds send limit %d", len(buf), c.conf.MaxSendMessageSize)
	}
	return c.enqueue(pendingWrite{data: buf})
}

// SendMessage frames body and queues it.
func (c *Conn) SendMessage(body []byte) error {
	if uint64(len(body)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	size := frame.HeaderSize + len(body)
	if c.conf.MaxSendMessageSize > 0 && uint64(size) > uint64(c.conf.MaxSendMessageSize) {
		return fmt.Errorf("message size %d exceeds send limit %d", size, c.conf.MaxSendMessageSize)
	}

	w := getWriter(size)
	frame.AppendHeader(w, uint32(len(body)))
	w.Write(body)

	return c.enqueue(pendingWrite{
		data: w.Bytes(),
		release: func() {
			putWriter(w)
		},
	})
}

func (c *Conn) enqueue(pw pendingWrite) error {
	_, queue := c.parts()
	if queue == nil {
		pw.done()
		if c.closed.Load() {
			return ErrConnectionClosed
		}
		return ErrNotConnected
	}
	return queue.send(pw)
}

// OnProtocolError is called by dispatchers on an application level fault.
// By default the fault is logged and the connection stays open.
func (c *Conn) OnProtocolError(callID uint8, versionID uint8, msg string) {
	c.conf.Metrics.protocolFault(c.role)
	if c.conf.ProtocolErrorHandler != nil {
		c.conf.ProtocolErrorHandler(c, callID, versionID, msg)
		return
	}
	c.logWarn(fmt.Sprintf("protocol error (call_id=%d, version_id=%d): %s", callID, versionID, msg))
}

func (c *Conn) invoke(body []byte) (err error) {
	if c.dispatch == nil {
		c.logWarn(fmt.Sprintf("no dispatcher configured, discarding %d byte message", len(body)))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			c.handleFault(&DispatchError{Err: fmt.Errorf("panic: %v", r)})
			err = nil
		}
	}()

	derr := c.dispatch(c.ctx, body)
	if derr == nil {
		return nil
	}
	if IsTransportError(derr) {
		return derr
	}
	c.handleFault(&DispatchError{Err: derr})
	return nil
}

func (c *Conn) handleFault(err error) {
	kind := faultDispatch
	if IsTransportError(err) {
		kind = faultTransport
		c.mu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.mu.Unlock()
	}

	c.conf.Metrics.fault(c.role, kind)
	c.logError("Encountered error: " + err.Error())
	if c.conf.ErrHandler != nil {
		c.conf.ErrHandler(err)
	}
}
