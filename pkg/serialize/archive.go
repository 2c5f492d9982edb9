package serialize

import (
	"errors"
	"fmt"
)

const (
	ArchiveMagic      = byte(0xB5)
	ArchiveVersion    = byte(0x01)
	ArchiveHeaderSize = 2
)

var ErrMalformedArchive = errors.New("malformed archive header")

// WriteArchiveHeader writes the marker bytes that open every archive.
func WriteArchiveHeader(writer ByteWriter) {
	bs := writer.Next(ArchiveHeaderSize)
	bs[0] = ArchiveMagic
	bs[1] = ArchiveVersion
}

func ReadArchiveHeader(reader *Reader) error {
	bs, err := reader.Read(ArchiveHeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if bs[0] != ArchiveMagic {
		return fmt.Errorf("%w: unexpected magic 0x%02x", ErrMalformedArchive, bs[0])
	}
	if bs[1] != ArchiveVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedArchive, bs[1])
	}
	return nil
}
