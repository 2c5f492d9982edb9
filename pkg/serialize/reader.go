package serialize

import (
	"fmt"
)

type Reader struct {
	bytes []byte
	rpos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{
		bytes: data,
	}
}

// Read returns the next n bytes. The returned slice aliases the reader's input.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read size: %d", n)
	}
	if r.rpos+n > len(r.bytes) {
		return nil, fmt.Errorf("reader does not contain enough data to fill the argument, num bytes available: %d, num bytes needed: %d", len(r.bytes)-r.rpos, n)
	}
	bs := r.bytes[r.rpos : r.rpos+n]
	r.rpos += n
	return bs, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.bytes) - r.rpos
}
