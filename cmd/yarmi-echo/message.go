package main

import (
	"fmt"

	"github.com/kbirk/yarmi/pkg/serialize"
)

const (
	echoCallID    = uint8(1)
	echoVersionID = uint8(1)
)

// echoMessage is the body exchanged by serve and ping. The call header lets
// the server reject calls it does not implement.
type echoMessage struct {
	CallID    uint8
	VersionID uint8
	Seq       uint64
	Reply     bool
	Sender    string
	Payload   []byte
}

func (m *echoMessage) ByteSize() int {
	return serialize.ArchiveHeaderSize +
		serialize.ByteSizeUInt8(m.CallID) +
		serialize.ByteSizeUInt8(m.VersionID) +
		serialize.ByteSizeUInt64(m.Seq) +
		serialize.ByteSizeBool(m.Reply) +
		serialize.ByteSizeString(m.Sender) +
		serialize.ByteSizeBytes(m.Payload)
}

func (m *echoMessage) Serialize(writer serialize.ByteWriter) {
	serialize.WriteArchiveHeader(writer)
	serialize.SerializeUInt8(writer, m.CallID)
	serialize.SerializeUInt8(writer, m.VersionID)
	serialize.SerializeUInt64(writer, m.Seq)
	serialize.SerializeBool(writer, m.Reply)
	serialize.SerializeString(writer, m.Sender)
	serialize.SerializeBytes(writer, m.Payload)
}

func (m *echoMessage) Deserialize(reader *serialize.Reader) error {
	if err := serialize.ReadArchiveHeader(reader); err != nil {
		return err
	}
	if err := serialize.DeserializeUInt8(&m.CallID, reader); err != nil {
		return err
	}
	if err := serialize.DeserializeUInt8(&m.VersionID, reader); err != nil {
		return err
	}
	if err := serialize.DeserializeUInt64(&m.Seq, reader); err != nil {
		return err
	}
	if err := serialize.DeserializeBool(&m.Reply, reader); err != nil {
		return err
	}
	if err := serialize.DeserializeString(&m.Sender, reader); err != nil {
		return err
	}
	return serialize.DeserializeBytes(&m.Payload, reader)
}

func (m *echoMessage) ToBytes() []byte {
	writer := serialize.NewFixedSizeWriter(m.ByteSize())
	m.Serialize(writer)
	return writer.Bytes()
}

func (m *echoMessage) FromBytes(bs []byte) error {
	reader := serialize.NewReader(bs)
	if err := m.Deserialize(reader); err != nil {
		return fmt.Errorf("decode echo message: %w", err)
	}
	if reader.Remaining() != 0 {
		return fmt.Errorf("decode echo message: %d trailing bytes", reader.Remaining())
	}
	return nil
}
