// Package frame implements the length-delimited framing used on every
// connection: a fixed-size header carrying the body length, followed by the
// body bytes. The header is written with the same binary archive encoding
// used for message bodies.
package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/kbirk/yarmi/pkg/serialize"
)

// HeaderSize is the fixed width of every frame header.
const HeaderSize = serialize.ArchiveHeaderSize + 4

var (
	ErrMalformedHeader = errors.New("frame: malformed header")
	ErrFrameTooLarge   = errors.New("frame: body too large")
)

// EncodeHeader returns the header announcing a body of the given length.
func EncodeHeader(bodyLength uint32) []byte {
	writer := serialize.NewFixedSizeWriter(HeaderSize)
	serialize.WriteArchiveHeader(writer)
	serialize.SerializeUInt32(writer, bodyLength)
	return writer.Bytes()
}

// AppendHeader writes the header for bodyLength into w.
func AppendHeader(w serialize.ByteWriter, bodyLength uint32) {
	serialize.WriteArchiveHeader(w)
	serialize.SerializeUInt32(w, bodyLength)
}

// DecodeHeader parses the first HeaderSize bytes of b. Any trailing bytes are
// ignored.
func DecodeHeader(b []byte) (uint32, error) {
	if len(b) < HeaderSize {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedHeader, HeaderSize, len(b))
	}
	reader := serialize.NewReader(b[:HeaderSize])
	if err := serialize.ReadArchiveHeader(reader); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	var bodyLength uint32
	if err := serialize.DeserializeUInt32(&bodyLength, reader); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return bodyLength, nil
}

// Encode returns header || body as a single buffer.
func Encode(body []byte) []byte {
	writer := serialize.NewFixedSizeWriter(HeaderSize + len(body))
	AppendHeader(writer, uint32(len(body)))
	copy(writer.Next(len(body)), body)
	return writer.Bytes()
}

// ReadFrame reads one complete frame from r and returns its body. A
// maxBody of zero disables the size check.
func ReadFrame(r io.Reader, maxBody uint32) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	bodyLength, err := DecodeHeader(header[:])
	if err != nil {
		return nil, err
	}
	if maxBody > 0 && bodyLength > maxBody {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrFrameTooLarge, bodyLength, maxBody)
	}
	body := make([]byte, bodyLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
