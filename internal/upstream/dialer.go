package upstream

import (
	"context"
	"log/slog"
	"strconv"
)

// Dialer opens connected sessions. Components take a Dialer rather than
// constructing sessions directly so tests can substitute fakes.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// WSDialer dials real WebSocket sessions against the configured endpoint.
type WSDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewWSDialer creates a dialer for the given endpoint configuration.
func NewWSDialer(cfg Config, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial opens a new session and connects it. The returned session is open
// and ready to send.
func (d *WSDialer) Dial(ctx context.Context) (Session, error) {
	sess := NewSession(d.cfg, d.logger)
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// endpointURL appends the app_id query parameter when configured.
func endpointURL(cfg Config) string {
	if cfg.AppID == 0 {
		return cfg.Endpoint
	}
	return cfg.Endpoint + "?app_id=" + strconv.Itoa(cfg.AppID)
}
