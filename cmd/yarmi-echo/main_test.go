package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/yarmi/internal/config"
	"github.com/kbirk/yarmi/pkg/frame"
	"github.com/kbirk/yarmi/pkg/log"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func testOptions(cfg config.Config) *options {
	return &options{
		cfg:      cfg,
		logger:   log.NewZerologLogger(zerolog.Nop()),
		registry: prometheus.NewRegistry(),
	}
}

func startServer(t *testing.T, cfg config.Config) (*echoServer, net.Addr) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)

	server := newEchoServer(cfg, log.NewZerologLogger(zerolog.Nop()), prometheus.NewRegistry())
	go func() {
		done <- server.run(ctx, io.Discard, ready)
	}()

	select {
	case addr := <-ready:
		t.Cleanup(func() {
			cancel()
			<-done
		})
		return server, addr
	case err := <-done:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return nil, nil
}

func ping(t *testing.T, cfg config.Config, count int) string {
	t.Helper()
	var out bytes.Buffer
	err := runPing(context.Background(), testOptions(cfg), &pingOptions{
		count:   count,
		size:    32,
		timeout: 2 * time.Second,
	}, &out)
	require.NoError(t, err)
	return out.String()
}

func TestPingOverTCP(t *testing.T) {

	cfg := config.Default()
	cfg.Port = 0
	server, addr := startServer(t, cfg)

	cfg.Port = uint16(addr.(*net.TCPAddr).Port)
	out := ping(t, cfg, 3)

	assert.Contains(t, out, "SUCCESS: 3 messages")
	assert.Equal(t, int64(3), server.stats.echoed.Load())
	assert.Equal(t, int64(1), server.stats.accepted.Load())
}

func TestPingOverUnix(t *testing.T) {

	cfg := config.Default()
	cfg.Transport = config.TransportUnix
	cfg.SocketPath = filepath.Join(t.TempDir(), "echo.sock")
	server, _ := startServer(t, cfg)

	out := ping(t, cfg, 2)

	assert.Contains(t, out, "SUCCESS: 2 messages")
	assert.Equal(t, int64(2), server.stats.echoed.Load())
}

func TestPingOverWebSocket(t *testing.T) {

	cfg := config.Default()
	cfg.Transport = config.TransportWebSocket
	cfg.Port = 0
	server, addr := startServer(t, cfg)

	cfg.Port = uint16(addr.(*net.TCPAddr).Port)
	out := ping(t, cfg, 4)

	assert.Contains(t, out, "SUCCESS: 4 messages")
	assert.Equal(t, int64(4), server.stats.echoed.Load())
}

func TestServerDropsClosedSessions(t *testing.T) {

	cfg := config.Default()
	cfg.Port = 0
	server, addr := startServer(t, cfg)

	cfg.Port = uint16(addr.(*net.TCPAddr).Port)
	ping(t, cfg, 1)

	assert.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectsUnknownCalls(t *testing.T) {

	server := newEchoServer(config.Default(), log.NewZerologLogger(zerolog.Nop()), prometheus.NewRegistry())
	local, peer := net.Pipe()
	defer peer.Close()
	defer server.closeSessions()
	server.accept(local)

	unknown := echoMessage{CallID: 9, VersionID: echoVersionID, Sender: "test"}
	_, err := peer.Write(frame.Encode(unknown.ToBytes()))
	require.NoError(t, err)

	stale := echoMessage{CallID: echoCallID, VersionID: echoVersionID + 1, Sender: "test"}
	_, err = peer.Write(frame.Encode(stale.ToBytes()))
	require.NoError(t, err)

	valid := echoMessage{CallID: echoCallID, VersionID: echoVersionID, Seq: 3, Sender: "test", Payload: []byte("hi")}
	_, err = peer.Write(frame.Encode(valid.ToBytes()))
	require.NoError(t, err)

	body, err := frame.ReadFrame(peer, 0)
	require.NoError(t, err)
	require.NoError(t, checkReply(body, valid))

	assert.Equal(t, int64(2), server.stats.rejected.Load())
	assert.Equal(t, int64(1), server.stats.echoed.Load())
}

func TestPingRejectsBadOptions(t *testing.T) {

	opts := testOptions(config.Default())
	err := runPing(context.Background(), opts, &pingOptions{count: 0}, io.Discard)
	assert.ErrorContains(t, err, "count must be positive")

	err = runPing(context.Background(), opts, &pingOptions{count: 1, size: -1}, io.Discard)
	assert.ErrorContains(t, err, "size must not be negative")
}

func TestRootCommandValidatesFlags(t *testing.T) {

	cmd := newRootCmd()
	cmd.SetArgs([]string{"ping", "--transport", "carrier-pigeon"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	assert.ErrorContains(t, err, `unknown transport "carrier-pigeon"`)
}

func TestRootCommandMissingConfig(t *testing.T) {

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	assert.ErrorContains(t, err, "config load failed")
}
