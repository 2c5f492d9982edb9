// Package config loads the yarmi-echo TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kbirk/yarmi/pkg/log"
	"github.com/kbirk/yarmi/pkg/rpc"
)

const (
	TransportTCP       = "tcp"
	TransportUnix      = "unix"
	TransportWebSocket = "websocket"
)

type Config struct {
	Transport      string
	Address        string
	Port           uint16
	SocketPath     string
	WebSocketPath  string
	NoDelay        bool
	DialTimeout    time.Duration
	LogLevel       string
	MetricsAddress string // Serves /metrics when set
	TLS            TLSConfig
	Conn           ConnConfig
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	CAFile             string
	ServerName         string
	CertFile           string // Server certificate for serve
	KeyFile            string // Server key for serve
}

type ConnConfig struct {
	MaxRecvMessageSize uint32
	MaxSendMessageSize uint32
	MaxQueuedWrites    int
	OverflowPolicy     rpc.OverflowPolicy
}

type fileConfig struct {
	Transport      string         `toml:"transport"`
	Address        string         `toml:"address"`
	Port           int64          `toml:"port"`
	SocketPath     string         `toml:"socket_path"`
	WebSocketPath  string         `toml:"websocket_path"`
	NoDelay        bool           `toml:"no_delay"`
	DialTimeout    string         `toml:"dial_timeout"`
	LogLevel       string         `toml:"log_level"`
	MetricsAddress string         `toml:"metrics_address"`
	TLS            fileTLSConfig  `toml:"tls"`
	Conn           fileConnConfig `toml:"conn"`
}

type fileTLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
}

type fileConnConfig struct {
	MaxRecvMessageSize int64  `toml:"max_recv_message_size"`
	MaxSendMessageSize int64  `toml:"max_send_message_size"`
	MaxQueuedWrites    int    `toml:"max_queued_writes"`
	OverflowPolicy     string `toml:"overflow_policy"`
}

func Default() Config {
	return Config{
		Transport:     TransportTCP,
		Address:       "127.0.0.1",
		Port:          7070,
		WebSocketPath: "/rpc",
		NoDelay:       true,
		DialTimeout:   5 * time.Second,
		LogLevel:      "info",
		Conn: ConnConfig{
			MaxRecvMessageSize: 4 << 20,
			OverflowPolicy:     rpc.OverflowBlock,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		if raw.Port < 0 || raw.Port > 65535 {
			return Config{}, fmt.Errorf("port %d out of range", raw.Port)
		}
		cfg.Port = uint16(raw.Port)
	}
	if meta.IsDefined("socket_path") {
		cfg.SocketPath = strings.TrimSpace(raw.SocketPath)
	}
	if meta.IsDefined("websocket_path") {
		cfg.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("no_delay") {
		cfg.NoDelay = raw.NoDelay
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}

	if meta.IsDefined("tls") {
		cfg.TLS = TLSConfig{
			Enabled:            raw.TLS.Enabled,
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
		}
	}

	if meta.IsDefined("conn", "max_recv_message_size") {
		size, err := messageSize("max_recv_message_size", raw.Conn.MaxRecvMessageSize)
		if err != nil {
			return Config{}, err
		}
		cfg.Conn.MaxRecvMessageSize = size
	}
	if meta.IsDefined("conn", "max_send_message_size") {
		size, err := messageSize("max_send_message_size", raw.Conn.MaxSendMessageSize)
		if err != nil {
			return Config{}, err
		}
		cfg.Conn.MaxSendMessageSize = size
	}
	if meta.IsDefined("conn", "max_queued_writes") {
		cfg.Conn.MaxQueuedWrites = raw.Conn.MaxQueuedWrites
	}
	if meta.IsDefined("conn", "overflow_policy") {
		policy, err := rpc.ParseOverflowPolicy(raw.Conn.OverflowPolicy)
		if err != nil {
			return Config{}, fmt.Errorf("parse overflow_policy: %w", err)
		}
		cfg.Conn.OverflowPolicy = policy
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func messageSize(key string, v int64) (uint32, error) {
	if v < 0 || v > int64(^uint32(0)) {
		return 0, fmt.Errorf("%s %d out of range", key, v)
	}
	return uint32(v), nil
}

func Validate(cfg Config) error {
	switch cfg.Transport {
	case TransportTCP, TransportWebSocket:
		if strings.TrimSpace(cfg.Address) == "" {
			return fmt.Errorf("%s config missing address", cfg.Transport)
		}
		if cfg.Port == 0 {
			return fmt.Errorf("%s config missing port", cfg.Transport)
		}
	case TransportUnix:
		if strings.TrimSpace(cfg.SocketPath) == "" {
			return fmt.Errorf("unix config missing socket_path")
		}
		if cfg.TLS.Enabled {
			return fmt.Errorf("tls is not supported over unix sockets")
		}
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.Transport == TransportWebSocket && !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return fmt.Errorf("websocket_path must start with /")
	}
	if cfg.Conn.MaxQueuedWrites < 0 {
		return fmt.Errorf("max_queued_writes must not be negative")
	}
	if cfg.LogLevel != "" {
		if _, ok := log.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
		}
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls cert_file and key_file must be set together")
	}
	return nil
}

// ConnConfig maps the file limits onto an rpc.ConnConfig. Dispatcher and
// logging are left to the caller.
func (c Config) ConnConfig() rpc.ConnConfig {
	return rpc.ConnConfig{
		MaxRecvMessageSize: c.Conn.MaxRecvMessageSize,
		MaxSendMessageSize: c.Conn.MaxSendMessageSize,
		MaxQueuedWrites:    c.Conn.MaxQueuedWrites,
		OverflowPolicy:     c.Conn.OverflowPolicy,
	}
}
