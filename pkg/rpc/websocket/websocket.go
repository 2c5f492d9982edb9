// Package websocket carries the framed byte stream over WebSocket binary
// messages, so a connection can run behind HTTP infrastructure.
package websocket

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultPath = "/rpc"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamConn presents a WebSocket as a net.Conn byte stream. Each Write is
// sent as one binary message; Read concatenates received binary messages.
// Once a read fails, including by deadline, the stream cannot be read again.
type streamConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newStreamConn(conn *websocket.Conn) *streamConn {
	return &streamConn{
		conn: conn,
	}
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				// Check if this is a normal close error
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *streamConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		// Send a proper close frame before closing the connection
		// Use a short deadline to avoid blocking indefinitely
		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *streamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *streamConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Upgrade completes the WebSocket handshake for an external acceptor and
// returns the resulting byte stream.
func Upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newStreamConn(conn), nil
}

// ClientTransport dials WebSocket connections
type ClientTransport struct {
	Path      string
	TLSConfig *tls.Config
	Header    http.Header
}

type ClientTransportConfig struct {
	Path      string      // Request path, defaults to /rpc
	TLSConfig *tls.Config // Use wss when set
	Header    http.Header // Extra handshake headers
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	path := config.Path
	if path == "" {
		path = DefaultPath
	}
	return &ClientTransport{
		Path:      path,
		TLSConfig: config.TLSConfig,
		Header:    config.Header,
	}
}

func (t *ClientTransport) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	scheme := "ws"

	// create dialer
	dialer := websocket.Dialer{}
	if t.TLSConfig != nil {
		// Configure the Dialer to use SSL/TLS
		dialer.TLSClientConfig = t.TLSConfig
		scheme = "wss"
	}

	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(address, strconv.Itoa(int(port))), Path: t.Path}

	// connect to the WebSocket server
	conn, resp, err := dialer.DialContext(ctx, u.String(), t.Header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return newStreamConn(conn), nil
}
