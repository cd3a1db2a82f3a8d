package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/derivhub/relay/internal/deriv"
	"github.com/derivhub/relay/internal/upstream"
)

// Service fetches the instrument catalogue from the upstream API.
type Service struct {
	dialer  upstream.Dialer
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService creates a catalogue service. timeout bounds each upstream
// round-trip so callers never hang on a stuck connection.
func NewService(dialer upstream.Dialer, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dialer: dialer, timeout: timeout, logger: logger}
}

// ActiveSymbols returns the full instrument catalogue. Concurrent calls
// share one in-flight upstream request.
func (s *Service) ActiveSymbols(ctx context.Context) (json.RawMessage, error) {
	v, err, _ := s.group.Do("active_symbols", func() (any, error) {
		// Detached from the caller's context: the result is shared
		// with every waiter, so one caller leaving must not cancel it.
		return s.fetch(context.Background())
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return v.(json.RawMessage), nil
}

func (s *Service) fetch(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial upstream: %w", err)
	}
	defer sess.Close()

	if err := sess.SendJSON(deriv.NewActiveSymbolsRequest()); err != nil {
		return nil, fmt.Errorf("request active symbols: %w", err)
	}

	for {
		select {
		case env, ok := <-sess.Messages():
			if !ok {
				return nil, upstream.ErrNotConnected
			}
			if env.Error != nil {
				return nil, env.Error
			}
			if env.MsgType != deriv.MsgTypeActiveSymbols {
				s.logger.Warn("unexpected catalogue response", "msg_type", env.MsgType)
				continue
			}
			return env.ActiveSymbols, nil
		case err := <-sess.Errors():
			return nil, err
		case <-ctx.Done():
			return nil, fmt.Errorf("catalogue fetch: %w", ctx.Err())
		}
	}
}
