package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/derivhub/relay/internal/deriv"
)

// Session represents a single WebSocket connection to the Deriv API.
type Session interface {
	// Connect establishes the WebSocket connection. It returns only once
	// the socket is open, so callers never poll for readiness.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. Idempotent.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// SendJSON marshals v and writes it to the connection.
	SendJSON(v any) error

	// Messages returns the stream of decoded inbound frames, in receipt
	// order. The channel is closed when the read loop exits.
	Messages() <-chan deriv.Envelope

	// Errors returns a channel carrying at most one connection error.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// session implements the Session interface.
type session struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan deriv.Envelope
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPongAt time.Time
	closed     bool
}

// NewSession creates a new session. Each session gets a unique id for
// log correlation.
func NewSession(cfg Config, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &session{
		cfg:      cfg,
		logger:   logger.With("session_id", uuid.NewString()),
		messages: make(chan deriv.Envelope, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (s *session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, endpointURL(s.cfg), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastPongAt = time.Now()
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPongAt = time.Now()
		s.mu.Unlock()
		return nil
	})

	go s.readLoop()
	go s.keepaliveLoop()

	s.logger.Debug("upstream session connected", "endpoint", s.cfg.Endpoint)

	return nil
}

// Close gracefully closes the connection.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (s *session) Send(data []byte) error {
	s.mu.RLock()
	if !s.connected {
		s.mu.RUnlock()
		return ErrNotConnected
	}
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON marshals v and writes it to the connection.
func (s *session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Messages returns the inbound frame channel.
func (s *session) Messages() <-chan deriv.Envelope {
	return s.messages
}

// Errors returns the errors channel.
func (s *session) Errors() <-chan error {
	return s.errors
}

// IsConnected returns the current connection state.
func (s *session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLoop reads frames, decodes them, and delivers them in order.
// Closing the messages channel on exit lets owners observe session end
// without racing the errors channel.
func (s *session) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		close(s.messages)
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-s.done:
				return
			default:
				select {
				case s.errors <- err:
				default:
				}
				return
			}
		}

		env, err := deriv.ParseEnvelope(data)
		if err != nil {
			s.logger.Warn("malformed upstream frame, skipping", "error", err)
			continue
		}

		select {
		case s.messages <- env:
		case <-s.done:
			return
		}
	}
}

// keepaliveLoop pings the peer and flags stale connections.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			lastPong := s.lastPongAt
			s.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					s.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPong) > s.cfg.PingTimeout {
				s.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", s.cfg.PingTimeout,
				)
				select {
				case s.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
