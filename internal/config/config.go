package config

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beamui/beam/pkg/server"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root of the deployment file.
type Config struct {
	Server ServerSection `yaml:"server"`
	Limits LimitsSection `yaml:"limits"`
	Log    LogSection    `yaml:"log"`
}

// ServerSection configures the listener.
type ServerSection struct {
	// Listen is the TCP address to bind, e.g. ":9310".
	Listen string `yaml:"listen"`

	// HTTPListen is the address for the HTTP sidecar serving the WebSocket
	// endpoint, health, and metrics. Empty disables it.
	HTTPListen string `yaml:"http_listen"`

	// TLS holds the certificate pair. Both paths or neither.
	TLS TLSSection `yaml:"tls"`
}

// TLSSection points at a PEM certificate pair on disk.
type TLSSection struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LimitsSection bounds per-connection resources.
type LimitsSection struct {
	// MaxFrameBytes caps one frame payload.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`

	// HandshakeTimeout bounds the wait for the first hello.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// ReadTimeout is the idle limit between inbound frames; zero disables.
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout is the per-attempt frame write deadline.
	WriteTimeout Duration `yaml:"write_timeout"`

	// OutboundQueue is the per-connection outbound queue depth.
	OutboundQueue int `yaml:"outbound_queue"`
}

// LogSection configures slog output.
type LogSection struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	def := server.DefaultConfig()
	return &Config{
		Server: ServerSection{Listen: def.ListenAddr},
		Limits: LimitsSection{
			MaxFrameBytes:    def.MaxFrameBytes,
			HandshakeTimeout: Duration(def.HandshakeTimeout),
			WriteTimeout:     Duration(def.WriteTimeout),
			OutboundQueue:    def.OutboundQueue,
		},
		Log: LogSection{Level: "info", Format: "text"},
	}
}

// Load reads path and merges it over the defaults. A missing file is fine
// when path is empty; a named file that does not exist is an error. Unknown
// keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: file %s does not exist", path)
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("config: server.listen must not be empty")
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return errors.New("config: tls cert_file and key_file must be set together")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Limits.MaxFrameBytes < 0 {
		return errors.New("config: limits.max_frame_bytes must not be negative")
	}
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", name)
	}
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// ServerConfig translates the file into a server.Config. TLS material is
// loaded from disk here so the server package stays free of file handling.
func (c *Config) ServerConfig() (*server.Config, error) {
	cfg := server.DefaultConfig().WithListenAddr(c.Server.Listen)
	if c.Limits.MaxFrameBytes > 0 {
		cfg.MaxFrameBytes = c.Limits.MaxFrameBytes
	}
	if c.Limits.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = time.Duration(c.Limits.HandshakeTimeout)
	}
	if c.Limits.ReadTimeout > 0 {
		cfg.ReadTimeout = time.Duration(c.Limits.ReadTimeout)
	}
	if c.Limits.WriteTimeout > 0 {
		cfg.WriteTimeout = time.Duration(c.Limits.WriteTimeout)
	}
	if c.Limits.OutboundQueue > 0 {
		cfg.OutboundQueue = c.Limits.OutboundQueue
	}

	if c.Server.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.Server.TLS.CertFile, c.Server.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("config: loading TLS key pair: %w", err)
		}
		cfg.WithTLS(&tls.Config{Certificates: []tls.Certificate{cert}})
	}
	return cfg, nil
}
