package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbirk/yarmi/internal/config"
	"github.com/kbirk/yarmi/pkg/rpc"
	"github.com/kbirk/yarmi/pkg/rpc/tcp"
	"github.com/kbirk/yarmi/pkg/rpc/unix"
	"github.com/kbirk/yarmi/pkg/rpc/websocket"
)

type pingOptions struct {
	count   int
	size    int
	timeout time.Duration
}

func newPingCmd(opts *options) *cobra.Command {
	ping := &pingOptions{}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send messages to an echo server and time the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), opts, ping, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&ping.count, "count", "n", 5, "Messages to send")
	cmd.Flags().IntVar(&ping.size, "size", 64, "Body size in bytes")
	cmd.Flags().DurationVar(&ping.timeout, "timeout", 5*time.Second, "Time to wait for each reply")
	return cmd
}

func clientTransport(cfg config.Config) rpc.ClientTransport {
	switch cfg.Transport {
	case config.TransportUnix:
		return unix.NewClientTransport(unix.ClientTransportConfig{
			SocketPath: cfg.SocketPath,
		})
	case config.TransportWebSocket:
		var tlsConfig *tls.Config
		if cfg.TLS.Enabled {
			tlsConfig = &tls.Config{
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
				ServerName:         cfg.TLS.ServerName,
				MinVersion:         tls.VersionTLS12,
			}
		}
		return websocket.NewClientTransport(websocket.ClientTransportConfig{
			Path:      cfg.WebSocketPath,
			TLSConfig: tlsConfig,
		})
	default:
		var tlsConfig *tcp.TLSConfig
		if cfg.TLS.Enabled {
			tlsConfig = &tcp.TLSConfig{
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
				CAFile:             cfg.TLS.CAFile,
				ServerName:         cfg.TLS.ServerName,
			}
		}
		return tcp.NewClientTransport(tcp.ClientTransportConfig{
			NoDelay:     cfg.NoDelay,
			DialTimeout: cfg.DialTimeout,
			TLS:         tlsConfig,
		})
	}
}

func runPing(ctx context.Context, opts *options, ping *pingOptions, out io.Writer) error {
	if ping.count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if ping.size < 0 {
		return fmt.Errorf("size must not be negative")
	}

	replies := make(chan []byte, ping.count)
	faults := make(chan error, 1)

	conf := opts.cfg.ConnConfig()
	conf.Logger = opts.logger
	conf.Metrics = rpc.NewMetrics(opts.registry)
	conf.Dispatcher = rpc.DispatcherFunc(func(ctx context.Context, body []byte) error {
		replies <- body
		return nil
	})
	conf.ErrHandler = func(err error) {
		select {
		case faults <- err:
		default:
		}
	}

	client := rpc.NewClient(rpc.ClientConfig{
		ConnConfig: conf,
		Transport:  clientTransport(opts.cfg),
	})
	defer client.Disconnect()

	address := opts.cfg.Address
	if opts.cfg.Transport == config.TransportUnix {
		address = opts.cfg.SocketPath
	}
	if err := client.Connect(ctx, address, opts.cfg.Port); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", green("CONNECTED:"), white(client.RemoteAddr().String()))

	var total time.Duration
	for i := 0; i < ping.count; i++ {
		msg := echoMessage{
			CallID:    echoCallID,
			VersionID: echoVersionID,
			Seq:       uint64(i),
			Sender:    "ping",
			Payload:   bytes.Repeat([]byte{byte(i)}, ping.size),
		}
		body := msg.ToBytes()

		start := time.Now()
		if err := client.SendMessage(body); err != nil {
			return err
		}

		select {
		case reply := <-replies:
			if err := checkReply(reply, msg); err != nil {
				return err
			}
		case err := <-faults:
			return err
		case <-time.After(ping.timeout):
			return fmt.Errorf("no reply to message %d within %v", i, ping.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}

		rtt := time.Since(start)
		total += rtt
		fmt.Fprintf(out, "%s %d bytes seq=%d time=%v\n", cyan("[reply]"), len(body), i, rtt)
	}

	fmt.Fprintf(out, "%s %d messages, avg %v\n", green("SUCCESS:"), ping.count, total/time.Duration(ping.count))
	return nil
}

func checkReply(bs []byte, sent echoMessage) error {
	var reply echoMessage
	if err := reply.FromBytes(bs); err != nil {
		return err
	}
	if !reply.Reply || reply.Seq != sent.Seq || !bytes.Equal(reply.Payload, sent.Payload) {
		return fmt.Errorf("reply %d does not match the message sent", sent.Seq)
	}
	return nil
}
