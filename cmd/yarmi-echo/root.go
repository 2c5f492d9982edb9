package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbirk/yarmi/internal/config"
	"github.com/kbirk/yarmi/pkg/log"
)

var (
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	white = color.New(color.FgWhite, color.Bold).SprintFunc()
)

// options holds the global flags and the state derived from them before a
// subcommand runs.
type options struct {
	configPath string
	transport  string
	address    string
	port       uint16
	socketPath string

	cfg      config.Config
	logger   *log.ZerologLogger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "yarmi-echo",
		Short:         "Echo server and client for the yarmi transport",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "TOML config file")
	flags.StringVar(&opts.transport, "transport", "", "tcp, unix or websocket")
	flags.StringVar(&opts.address, "address", "", "Address to listen on or connect to")
	flags.Uint16Var(&opts.port, "port", 0, "Port to listen on or connect to")
	flags.StringVar(&opts.socketPath, "socket", "", "Unix socket path")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPingCmd(opts))

	return cmd
}

func (o *options) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = o.transport
	}
	if flags.Changed("address") {
		cfg.Address = o.address
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("socket") {
		cfg.SocketPath = o.socketPath
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	o.registry = prometheus.NewRegistry()
	return nil
}

// newLogger applies the configured level unless YARMI_LOG_LEVEL is set.
func newLogger(out io.Writer, level string) *log.ZerologLogger {
	logger := log.NewConsoleLogger(out, "yarmi-echo")
	if os.Getenv(log.EnvLogLevel) != "" {
		return logger
	}
	if lvl, ok := log.ParseLevel(level); ok {
		logger = logger.Level(lvl)
	}
	return logger
}
