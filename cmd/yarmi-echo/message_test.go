package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/yarmi/pkg/serialize"
)

func TestEchoMessageRoundTrip(t *testing.T) {

	input := echoMessage{
		CallID:    echoCallID,
		VersionID: echoVersionID,
		Seq:       1<<40 + 7,
		Reply:     true,
		Sender:    "ping",
		Payload:   []byte{0, 1, 2, 3},
	}

	bs := input.ToBytes()
	assert.Len(t, bs, input.ByteSize())

	var output echoMessage
	require.NoError(t, output.FromBytes(bs))
	assert.Equal(t, input, output)
}

func TestEchoMessageRejectsBadInput(t *testing.T) {

	valid := (&echoMessage{CallID: echoCallID, VersionID: echoVersionID, Sender: "ping"}).ToBytes()

	var msg echoMessage
	assert.ErrorIs(t, msg.FromBytes([]byte{0x00, 0x01, 1, 1}), serialize.ErrMalformedArchive)
	assert.Error(t, msg.FromBytes(valid[:len(valid)-1]))
	assert.ErrorContains(t, msg.FromBytes(append(valid, 0xff)), "1 trailing bytes")
}
