package rpc

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/kbirk/yarmi/pkg/frame"
)

// countingReader counts Read calls made against an underlying reader.
type countingReader struct {
	r     io.Reader
	calls atomic.Int32
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.calls.Inc()
	return r.r.Read(p)
}

// scripted returns a reader yielding data and then err.
func scripted(data []byte, err error) *countingReader {
	return &countingReader{
		r: io.MultiReader(bytes.NewReader(data), errReader{err: err}),
	}
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func frames(bodies ...string) []byte {
	var buf bytes.Buffer
	for _, body := range bodies {
		buf.Write(frame.Encode([]byte(body)))
	}
	return buf.Bytes()
}

// faultRecorder collects reported faults.
type faultRecorder struct {
	mu     sync.Mutex
	faults []error
}

func (f *faultRecorder) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, err)
}

func (f *faultRecorder) all() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.faults...)
}

// bodyRecorder collects dispatched bodies.
type bodyRecorder struct {
	mu     sync.Mutex
	bodies [][]byte
	ch     chan []byte
}

func newBodyRecorder() *bodyRecorder {
	return &bodyRecorder{
		ch: make(chan []byte, 64),
	}
}

func (b *bodyRecorder) record(body []byte) {
	b.mu.Lock()
	b.bodies = append(b.bodies, body)
	b.mu.Unlock()
	b.ch <- body
}

func (b *bodyRecorder) all() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.bodies...)
}

func (b *bodyRecorder) next(timeout time.Duration) ([]byte, error) {
	select {
	case body := <-b.ch:
		return body, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no body dispatched within %v", timeout)
	}
}

// testLogger captures log lines by level.
type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) add(level string, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *testLogger) Debug(msg string) { l.add("debug", msg) }
func (l *testLogger) Info(msg string)  { l.add("info", msg) }
func (l *testLogger) Warn(msg string)  { l.add("warn", msg) }
func (l *testLogger) Error(msg string) { l.add("error", msg) }

func (l *testLogger) contains(level string, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if bytes.HasPrefix([]byte(line), []byte(level+" ")) && bytes.Contains([]byte(line), []byte(substr)) {
			return true
		}
	}
	return false
}
