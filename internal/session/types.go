package session

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrConnectionLost     = errors.New("connection lost")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrCoinRequired       = errors.New("channel requires a coin")
	ErrNoActiveReplay     = errors.New("no active replay")
	ErrNoActiveStream     = errors.New("no active stream")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config configures a session Manager.
type Config struct {
	URL              string        // WebSocket URL
	APIKey           string        // Bearer token sent on the dial; empty = no auth
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keep-alive ping cadence while connected

	AutoReconnect        bool          // Reconnect after an unexpected closure
	ReconnectDelay       time.Duration // Backoff base: delay = base * 2^attempt
	MaxReconnectAttempts int           // Scheduled tries before giving up
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingInterval:         15 * time.Second,
		AutoReconnect:        true,
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 10,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
}

// subKey identifies a channel subscription.
type subKey struct {
	Channel string
	Coin    string
}
