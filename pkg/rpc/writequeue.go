package rpc

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// OverflowPolicy selects what Send does when a bounded write queue is full.
type OverflowPolicy int

const (
	// OverflowReject fails the send with ErrWriteQueueFull.
	OverflowReject OverflowPolicy = iota
	// OverflowBlock waits until a queued buffer is written.
	OverflowBlock
	// OverflowDropOldest discards the buffer at the front of the queue.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy is the inverse of OverflowPolicy.String.
func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reject":
		return OverflowReject, nil
	case "block":
		return OverflowBlock, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return OverflowReject, fmt.Errorf("unknown overflow policy %q", raw)
	}
}

type pendingWrite struct {
	data    []byte
	release func()
}

func (pw pendingWrite) done() {
	if pw.release != nil {
		pw.release()
	}
}

type writeQueueConfig struct {
	limit     int
	policy    OverflowPolicy
	onFault   func(error)
	onWritten func(n int)
	onDropped func()
	onDepth   func(delta int)
}

// writeQueue serializes buffers onto w. At most one Write is outstanding at
// any time; each completion starts the write of the next queued buffer.
type writeQueue struct {
	w    io.Writer
	conf writeQueueConfig

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []pendingWrite
	inFlight bool
	paused   bool
	closed   bool
	err      error
}

func newWriteQueue(w io.Writer, conf writeQueueConfig) *writeQueue {
	q := &writeQueue{
		w:    w,
		conf: conf,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *writeQueue) send(pw pendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			pw.done()
			return ErrConnectionClosed
		}
		if q.err != nil {
			pw.done()
			return q.err
		}
		if !q.inFlight && !q.paused {
			q.inFlight = true
			go q.drain(pw)
			return nil
		}
		if q.conf.limit <= 0 || len(q.pending) < q.conf.limit {
			break
		}

		switch q.conf.policy {
		case OverflowBlock:
			q.cond.Wait()
			continue
		case OverflowDropOldest:
			dropped := q.pending[0]
			q.pending[0] = pendingWrite{}
			q.pending = q.pending[1:]
			dropped.done()
			q.depth(-1)
			if q.conf.onDropped != nil {
				q.conf.onDropped()
			}
		default:
			pw.done()
			return ErrWriteQueueFull
		}
		break
	}

	q.pending = append(q.pending, pw)
	q.depth(1)
	return nil
}

func (q *writeQueue) drain(pw pendingWrite) {
	for {
		want := len(pw.data)
		n, err := q.w.Write(pw.data)
		pw.done()

		if err != nil || n != want {
			q.fail(shortIO("write", n, want, err))
			return
		}
		if q.conf.onWritten != nil {
			q.conf.onWritten(n)
		}

		q.mu.Lock()
		if q.closed || q.paused || len(q.pending) == 0 {
			q.inFlight = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		pw = q.pending[0]
		q.pending[0] = pendingWrite{}
		q.pending = q.pending[1:]
		q.depth(-1)
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *writeQueue) fail(err error) {
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.err = err
	}
	dropped := q.pending
	q.pending = nil
	q.depth(-len(dropped))
	q.mu.Unlock()

	for _, pw := range dropped {
		pw.done()
	}
	// a write failing because the connection was closed is not a fault
	if !closed && q.conf.onFault != nil {
		q.conf.onFault(err)
	}

	// the flag is cleared last so wait returns only after the fault is reported
	q.mu.Lock()
	q.inFlight = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *writeQueue) pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

func (q *writeQueue) resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = false
	if q.inFlight || q.closed || q.err != nil || len(q.pending) == 0 {
		return
	}
	pw := q.pending[0]
	q.pending[0] = pendingWrite{}
	q.pending = q.pending[1:]
	q.depth(-1)
	q.inFlight = true
	go q.drain(pw)
}

func (q *writeQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.pending
	q.pending = nil
	q.depth(-len(dropped))
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, pw := range dropped {
		pw.done()
	}
}

// wait blocks until no write is in flight.
func (q *writeQueue) wait() {
	q.mu.Lock()
	for q.inFlight {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

func (q *writeQueue) queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// must be called with q.mu held
func (q *writeQueue) depth(delta int) {
	if delta != 0 && q.conf.onDepth != nil {
		q.conf.onDepth(delta)
	}
}
