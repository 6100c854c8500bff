package server

import (
	"crypto/tls"
	"time"

	"github.com/beamui/beam/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for the server and its connections.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g. ":9310").
	// Default: ":9310".
	ListenAddr string

	// TLSConfig, when non-nil, wraps every accepted TCP connection. The
	// server only uses the resulting stream; certificate and cipher policy
	// belong to the caller.
	TLSConfig *tls.Config

	// Limits

	// MaxFrameBytes is the maximum inbound or outbound frame payload size.
	// Values above protocol.HardMaxFrameBytes are clamped.
	// Default: 1 MiB.
	MaxFrameBytes int64

	// HandshakeTimeout bounds the wait for the first ClientHello. Exceeding
	// it faults the connection.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// ReadTimeout is the maximum idle time between inbound frames once
	// Ready. Zero disables the deadline; persistent connections may sit
	// idle indefinitely.
	// Default: 0 (disabled).
	ReadTimeout time.Duration

	// WriteTimeout is the per-attempt deadline for writing one frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// OutboundQueue is the depth of the per-connection outbound message
	// queue. A full queue suspends the producing handler.
	// Default: 32.
	OutboundQueue int

	// WriteRetries is the number of additional attempts after a transient
	// write failure before the connection is declared faulted.
	// Default: 3.
	WriteRetries int

	// RetryBaseDelay is the first backoff delay after a transient write
	// failure; each further attempt doubles it.
	// Default: 50 milliseconds.
	RetryBaseDelay time.Duration

	// Capabilities is the set this server speaks. Grants are the
	// intersection of this set with each client's request.
	// Default: protocol.SupportedCapabilities().
	Capabilities protocol.CapabilitySet

	// Registerer receives the server's Prometheus collectors. Nil disables
	// metrics registration.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":9310",
		MaxFrameBytes:    protocol.DefaultMaxFrameBytes,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		OutboundQueue:    32,
		WriteRetries:     3,
		RetryBaseDelay:   50 * time.Millisecond,
		Capabilities:     protocol.SupportedCapabilities(),
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Capabilities = c.Capabilities.Clone()
	return &clone
}

// WithListenAddr sets the listen address and returns the config for chaining.
func (c *Config) WithListenAddr(addr string) *Config {
	c.ListenAddr = addr
	return c
}

// WithTLS sets the TLS configuration and returns the config for chaining.
func (c *Config) WithTLS(tlsConfig *tls.Config) *Config {
	c.TLSConfig = tlsConfig
	return c
}

// WithMaxFrameBytes sets the frame payload limit and returns the config for
// chaining.
func (c *Config) WithMaxFrameBytes(n int64) *Config {
	c.MaxFrameBytes = n
	return c
}

// WithCapabilities sets the supported capability set and returns the config
// for chaining.
func (c *Config) WithCapabilities(caps protocol.CapabilitySet) *Config {
	c.Capabilities = caps
	return c
}

// WithRegisterer sets the metrics registerer and returns the config for
// chaining.
func (c *Config) WithRegisterer(reg prometheus.Registerer) *Config {
	c.Registerer = reg
	return c
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = def.OutboundQueue
	}
	if c.WriteRetries < 0 {
		c.WriteRetries = def.WriteRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.Capabilities == nil {
		c.Capabilities = def.Capabilities
	}
}
