package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	"github.com/kbirk/yarmi/internal/config"
	"github.com/kbirk/yarmi/pkg/log"
	"github.com/kbirk/yarmi/pkg/rpc"
	"github.com/kbirk/yarmi/pkg/rpc/tcp"
	"github.com/kbirk/yarmi/pkg/rpc/websocket"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and echo every message back",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := newEchoServer(opts.cfg, opts.logger, opts.registry)
			return server.run(ctx, cmd.OutOrStdout(), nil)
		},
	}
}

// serverStats is the state shared by every session of one server.
type serverStats struct {
	accepted atomic.Int64
	echoed   atomic.Int64
	rejected atomic.Int64
}

// callMiddleware wraps every call the server implements.
var callMiddleware = []rpc.Middleware{countEcho}

func countEcho(ctx context.Context, body []byte, next rpc.DispatcherFunc) error {
	if stats, ok := rpc.SharedFromContext(ctx).(*serverStats); ok {
		stats.echoed.Inc()
	}
	return next(ctx, body)
}

// route decodes the call header and runs the echo call behind the call
// middleware. Unknown calls and versions are protocol errors.
func route(ctx context.Context, body []byte) error {
	var msg echoMessage
	if err := msg.FromBytes(body); err != nil {
		return err
	}

	conn := rpc.ConnFromContext(ctx)
	if msg.CallID != echoCallID {
		conn.OnProtocolError(msg.CallID, msg.VersionID, "unknown call id")
		return nil
	}
	if msg.VersionID != echoVersionID {
		conn.OnProtocolError(msg.CallID, msg.VersionID, "unsupported version")
		return nil
	}

	return rpc.ApplyDispatchChain(ctx, body, callMiddleware, func(ctx context.Context, body []byte) error {
		msg.Reply = true
		return rpc.ConnFromContext(ctx).SendMessage(msg.ToBytes())
	})
}

type echoServer struct {
	cfg     config.Config
	logger  *log.ZerologLogger
	reg     *prometheus.Registry
	metrics *rpc.Metrics
	stats   *serverStats

	mu       sync.Mutex
	sessions map[string]*rpc.Session
}

func newEchoServer(cfg config.Config, logger *log.ZerologLogger, reg *prometheus.Registry) *echoServer {
	return &echoServer{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		metrics:  rpc.NewMetrics(reg),
		stats:    &serverStats{},
		sessions: make(map[string]*rpc.Session),
	}
}

// run serves until ctx is done. ready, when set, receives the bound address.
func (s *echoServer) run(ctx context.Context, out io.Writer, ready chan<- net.Addr) error {
	if s.cfg.MetricsAddress != "" {
		metricsServer := s.serveMetrics()
		defer metricsServer.Close()
	}

	var addr net.Addr
	var shutdown func() error
	var err error
	if s.cfg.Transport == config.TransportWebSocket {
		addr, shutdown, err = s.serveWebSocket()
	} else {
		addr, shutdown, err = s.serveStream()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s on %s\n", green("LISTENING:"), s.cfg.Transport, white(addr.String()))
	if ready != nil {
		ready <- addr
	}

	<-ctx.Done()

	err = shutdown()
	s.closeSessions()
	fmt.Fprintf(out, "%s accepted %s connections, echoed %s messages, rejected %s\n",
		green("STOPPED:"),
		cyan(s.stats.accepted.Load()),
		cyan(s.stats.echoed.Load()),
		cyan(s.stats.rejected.Load()))
	return err
}

func (s *echoServer) listen() (net.Listener, error) {
	if s.cfg.Transport == config.TransportUnix {
		// a stale socket file from an unclean exit blocks the bind
		if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return net.Listen("unix", s.cfg.SocketPath)
	}

	address := net.JoinHostPort(s.cfg.Address, strconv.Itoa(int(s.cfg.Port)))
	if s.cfg.TLS.CertFile == "" {
		return net.Listen("tcp", address)
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return tls.Listen("tcp", address, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
}

func (s *echoServer) serveStream() (net.Addr, func() error, error) {
	listener, err := s.listen()
	if err != nil {
		return nil, nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			nc, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("accept failed: " + err.Error())
				}
				return
			}
			tcp.ConfigureAccepted(nc, s.cfg.NoDelay)
			s.accept(nc)
		}
	}()

	shutdown := func() error {
		err := listener.Close()
		wg.Wait()
		return err
	}
	return listener.Addr(), shutdown, nil
}

func (s *echoServer) serveWebSocket() (net.Addr, func() error, error) {
	listener, err := s.listen()
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		nc, err := websocket.Upgrade(w, r)
		if err != nil {
			s.logger.Warn("websocket upgrade failed: " + err.Error())
			return
		}
		s.accept(nc)
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go server.Serve(listener)

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return listener.Addr(), shutdown, nil
}

func (s *echoServer) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              s.cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed: " + err.Error())
		}
	}()
	return server
}

func (s *echoServer) accept(nc net.Conn) {
	logger := s.logger.With("remote", nc.RemoteAddr().String())

	conf := s.cfg.ConnConfig()
	conf.Dispatcher = rpc.DispatcherFunc(route)
	conf.Metrics = s.metrics
	conf.Logger = logger
	conf.ProtocolErrorHandler = func(c *rpc.Conn, callID uint8, versionID uint8, msg string) {
		s.stats.rejected.Inc()
		logger.Warn(fmt.Sprintf("rejected call (call_id=%d, version_id=%d): %s", callID, versionID, msg))
	}

	var session *rpc.Session
	conf.ErrHandler = func(err error) {
		// the session is unusable once its read pipeline halts
		if rpc.IsTransportError(err) {
			s.remove(session)
		}
	}

	session, err := rpc.NewSession(nc, s.stats, rpc.SessionConfig{ConnConfig: conf})
	if err != nil {
		logger.Error("session create failed: " + err.Error())
		nc.Close()
		return
	}

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	s.stats.accepted.Inc()

	if err := session.Start(); err != nil {
		logger.Error("session start failed: " + err.Error())
		s.remove(session)
	}
}

func (s *echoServer) remove(session *rpc.Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID())
	s.mu.Unlock()
	session.Close()
}

func (s *echoServer) closeSessions() {
	s.mu.Lock()
	sessions := make([]*rpc.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*rpc.Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
		session.Wait()
	}
}
