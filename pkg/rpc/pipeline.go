package rpc

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/kbirk/yarmi/pkg/frame"
)

// ReadState is the position of a connection's read pipeline.
type ReadState int32

const (
	Idle ReadState = iota
	ReadingHeader
	ReadingBody
	Dispatching
	Stopped
)

func (s ReadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReadingHeader:
		return "reading-header"
	case ReadingBody:
		return "reading-body"
	case Dispatching:
		return "dispatching"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("ReadState(%d)", int32(s))
	}
}

// aLongTimeAgo is a non-zero deadline in the past, used to interrupt a
// blocked read.
var aLongTimeAgo = time.Unix(1, 0)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type readPipelineConfig struct {
	maxBody uint32
	// dispatch handles one body; a non-nil return halts the pipeline
	dispatch func(body []byte) error
	onFault  func(error)
	onFrame  func(n int)
	// closed reports whether the owner closed the transport, in which case
	// the resulting read error is not a fault
	closed func() bool
}

// readPipeline reads header then body then dispatches, in a loop, on its own
// goroutine. Reads are strictly sequential.
type readPipeline struct {
	r    io.Reader
	conf readPipelineConfig

	state    atomic.Int32
	stopping atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

func newReadPipeline(r io.Reader, conf readPipelineConfig) *readPipeline {
	return &readPipeline{
		r:    r,
		conf: conf,
	}
}

func (p *readPipeline) readState() ReadState {
	return ReadState(p.state.Load())
}

// start must not be called from dispatch after stop: it waits for the
// stopped run to exit.
func (p *readPipeline) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// a stopped run may still be returning from its interrupted read
	if p.stopping.Load() && p.done != nil {
		<-p.done
	}

	switch p.readState() {
	case Idle, Stopped:
	default:
		return ErrAlreadyStarted
	}

	// the previous run must be gone before its deadline is cleared
	if p.done != nil {
		<-p.done
	}
	if d, ok := p.r.(readDeadliner); ok {
		d.SetReadDeadline(time.Time{})
	}

	p.stopping.Store(false)
	p.state.Store(int32(ReadingHeader))
	done := make(chan struct{})
	p.done = done
	go p.run(done)
	return nil
}

// stop interrupts a pending read if the reader supports deadlines, otherwise
// the pipeline halts before its next read.
func (p *readPipeline) stop() {
	p.stopping.Store(true)
	if d, ok := p.r.(readDeadliner); ok {
		d.SetReadDeadline(aLongTimeAgo)
	}
}

// wait blocks until the current run, if any, has exited.
func (p *readPipeline) wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *readPipeline) run(done chan struct{}) {
	defer close(done)

	var header [frame.HeaderSize]byte
	for {
		p.state.Store(int32(ReadingHeader))
		if p.stopping.Load() {
			p.state.Store(int32(Stopped))
			return
		}

		n, err := io.ReadFull(p.r, header[:])
		if err != nil || n != frame.HeaderSize {
			p.halt(shortIO("read header", n, frame.HeaderSize, err))
			return
		}

		bodyLength, err := frame.DecodeHeader(header[:])
		if err != nil {
			p.halt(&TransportError{Op: "decode header", Err: err})
			return
		}
		if p.conf.maxBody > 0 && bodyLength > p.conf.maxBody {
			p.halt(&TransportError{
				Op:  "decode header",
				Err: fmt.Errorf("%w: %d exceeds limit %d", frame.ErrFrameTooLarge, bodyLength, p.conf.maxBody),
			})
			return
		}

		p.state.Store(int32(ReadingBody))
		body := make([]byte, bodyLength)
		n, err = io.ReadFull(p.r, body)
		if err != nil || n != len(body) {
			p.halt(shortIO("read body", n, len(body), err))
			return
		}

		if p.conf.onFrame != nil {
			p.conf.onFrame(frame.HeaderSize + len(body))
		}

		p.state.Store(int32(Dispatching))
		if err := p.conf.dispatch(body); err != nil {
			p.halt(err)
			return
		}
	}
}

func (p *readPipeline) halt(err error) {
	p.state.Store(int32(Stopped))
	if p.stopping.Load() {
		return
	}
	if p.conf.closed != nil && p.conf.closed() {
		return
	}
	if p.conf.onFault != nil {
		p.conf.onFault(err)
	}
}
