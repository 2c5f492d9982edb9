package unix

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDial(t *testing.T) {

	path := filepath.Join(t.TempDir(), "yarmi.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := NewClientTransport(ClientTransportConfig{}).Dial(context.Background(), path, 0)
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	_, err = server.Write([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))
}

func TestDialConfiguredPath(t *testing.T) {

	path := filepath.Join(t.TempDir(), "configured.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	transport := NewClientTransport(ClientTransportConfig{SocketPath: path})
	conn, err := transport.Dial(context.Background(), "ignored", 0)
	require.NoError(t, err)
	conn.Close()
}

func TestDialMissingSocket(t *testing.T) {

	_, err := NewClientTransport(ClientTransportConfig{}).Dial(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), 0)
	assert.Error(t, err)
}
