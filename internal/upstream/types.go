package upstream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Config configures a Deriv WebSocket session.
type Config struct {
	Endpoint     string        // WebSocket URL (e.g. wss://ws.binaryws.com/websockets/v3)
	AppID        int           // Deriv application ID, appended as ?app_id=
	PingInterval time.Duration // Keepalive ping cadence
	PingTimeout  time.Duration // Max time without pong before the session is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}
