package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenerPort(t *testing.T, l net.Listener) uint16 {
	t.Helper()
	return uint16(l.Addr().(*net.TCPAddr).Port)
}

func TestDial(t *testing.T) {

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			ConfigureAccepted(conn, true)
			accepted <- conn
		}
	}()

	transport := NewClientTransport(ClientTransportConfig{
		NoDelay:     true,
		DialTimeout: time.Second,
	})
	conn, err := transport.Dial(context.Background(), "127.0.0.1", listenerPort(t, l))
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestDialRefused(t *testing.T) {

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listenerPort(t, l)
	l.Close()

	transport := NewClientTransport(ClientTransportConfig{})
	_, err = transport.Dial(context.Background(), "127.0.0.1", port)
	assert.Error(t, err)
}

func TestDialTLS(t *testing.T) {

	server := httptest.NewUnstartedServer(nil)
	server.StartTLS()
	defer server.Close()

	l := server.Listener
	transport := NewClientTransport(ClientTransportConfig{
		TLS: &TLSConfig{
			InsecureSkipVerify: true,
		},
	})
	conn, err := transport.Dial(context.Background(), "127.0.0.1", listenerPort(t, l))
	require.NoError(t, err)
	defer conn.Close()

	_, ok := conn.(*tls.Conn)
	assert.True(t, ok)
}

func TestTLSConfigBadCAFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := (&TLSConfig{CAFile: path}).config("localhost")
	assert.ErrorContains(t, err, "failed to parse CA certificate")

	_, err = (&TLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")}).config("localhost")
	assert.ErrorContains(t, err, "failed to read CA file")
}
