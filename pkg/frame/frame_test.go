package frame

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/yarmi/pkg/serialize"
)

func TestHeaderRoundTrip(t *testing.T) {

	lengths := []uint32{0, 1, 255, 256, 65535, 65536, math.MaxUint32 - 1, math.MaxUint32}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		lengths = append(lengths, rng.Uint32())
	}

	for _, length := range lengths {
		header := EncodeHeader(length)
		require.Len(t, header, HeaderSize)

		decoded, err := DecodeHeader(header)
		require.NoError(t, err)
		assert.Equal(t, length, decoded)
	}
}

func TestHeaderLayout(t *testing.T) {

	header := EncodeHeader(0x0a0b0c0d)
	assert.Equal(t, []byte{serialize.ArchiveMagic, serialize.ArchiveVersion, 0x0a, 0x0b, 0x0c, 0x0d}, header)
}

func TestDecodeHeaderShort(t *testing.T) {

	header := EncodeHeader(10)
	for i := 0; i < HeaderSize; i++ {
		_, err := DecodeHeader(header[:i])
		assert.ErrorIs(t, err, ErrMalformedHeader)
	}
}

func TestDecodeHeaderBadMarker(t *testing.T) {

	header := EncodeHeader(10)
	header[0] ^= 0xff

	_, err := DecodeHeader(header)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	assert.ErrorIs(t, err, serialize.ErrMalformedArchive)
}

func TestEncodeAndReadFrame(t *testing.T) {

	var buf bytes.Buffer
	buf.Write(Encode([]byte("hello")))
	buf.Write(Encode(nil))
	buf.Write(Encode([]byte("world")))

	body, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)

	body, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Empty(t, body)

	body, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), body)

	_, err = ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTooLarge(t *testing.T) {

	_, err := ReadFrame(bytes.NewReader(Encode(make([]byte, 64))), 32)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameShortBody(t *testing.T) {

	encoded := Encode([]byte("truncated"))
	_, err := ReadFrame(bytes.NewReader(encoded[:len(encoded)-2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
