package serialize

import (
	"fmt"
)

type FixedSizeWriter struct {
	bytes []byte
	wpos  int
}

func NewFixedSizeWriter(size int) *FixedSizeWriter {
	return &FixedSizeWriter{
		bytes: make([]byte, size),
	}
}

func (w *FixedSizeWriter) Next(n int) []byte {
	if w.wpos+n > len(w.bytes) {
		panic(fmt.Sprintf("not enough space, need %d bytes but only %d available", n, len(w.bytes)-w.wpos))
	}
	slice := w.bytes[w.wpos : w.wpos+n]
	w.wpos += n
	return slice
}

func (w *FixedSizeWriter) Bytes() []byte {
	if w.wpos != len(w.bytes) {
		panic(fmt.Sprintf("leftover space, missing %d bytes", len(w.bytes)-w.wpos))
	}
	return w.bytes[:w.wpos]
}

// Writer is a growable output buffer, intended to be pooled and reused.
type Writer struct {
	bytes []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{
		bytes: make([]byte, 0, capacity),
	}
}

// Grow ensures there is room for at least n more bytes without reallocating.
func (w *Writer) Grow(n int) {
	if cap(w.bytes)-len(w.bytes) >= n {
		return
	}
	grown := make([]byte, len(w.bytes), len(w.bytes)+n)
	copy(grown, w.bytes)
	w.bytes = grown
}

func (w *Writer) Next(n int) []byte {
	w.Grow(n)
	start := len(w.bytes)
	w.bytes = w.bytes[:start+n]
	return w.bytes[start : start+n]
}

func (w *Writer) Write(p []byte) (int, error) {
	copy(w.Next(len(p)), p)
	return len(p), nil
}

func (w *Writer) Bytes() []byte {
	return w.bytes
}

func (w *Writer) Len() int {
	return len(w.bytes)
}

func (w *Writer) Capacity() int {
	return cap(w.bytes)
}

func (w *Writer) Reset() {
	w.bytes = w.bytes[:0]
}
