package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/derivhub/relay/internal/deriv"
	"github.com/derivhub/relay/internal/hub"
	"github.com/derivhub/relay/internal/upstream"
)

// Downstream events emitted to instrument topics.
const (
	EventAssetData         = "assetData"
	EventProposal          = "proposal"
	EventTransactionUpdate = "transactionUpdate"
)

// ErrClosed is returned by Subscribe after the multiplexer shuts down.
var ErrClosed = errors.New("multiplexer closed")

// ProposalEvent is the quote payload broadcast per contract direction.
type ProposalEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TransactionEvent wraps a transaction frame for broadcast.
type TransactionEvent struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Multiplexer maintains the symbol → session registry.
type Multiplexer struct {
	dialer upstream.Dialer
	bus    hub.Broadcaster
	logger *slog.Logger

	mu       sync.Mutex
	registry map[string]*feedSession
	closed   bool

	wg sync.WaitGroup
}

// feedSession is one registry entry. The entry is inserted before the
// dial completes so concurrent first-subscribers find it and wait on
// ready instead of opening a second session.
type feedSession struct {
	symbol string
	ready  chan struct{}
	sess   upstream.Session // set before ready is closed
	err    error            // set before ready is closed on dial failure
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer(dialer upstream.Dialer, bus hub.Broadcaster, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		dialer:   dialer,
		bus:      bus,
		logger:   logger,
		registry: make(map[string]*feedSession),
	}
}

// Subscribe ensures a live session exists for symbol. The first caller
// dials and sends the tick subscription; concurrent and later callers
// share the result. Idempotent.
func (m *Multiplexer) Subscribe(ctx context.Context, symbol string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if fs, ok := m.registry[symbol]; ok {
		m.mu.Unlock()
		select {
		case <-fs.ready:
			return fs.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fs := &feedSession{symbol: symbol, ready: make(chan struct{})}
	m.registry[symbol] = fs
	m.mu.Unlock()

	sess, err := m.dialer.Dial(ctx)
	if err != nil {
		fs.err = err
		close(fs.ready)
		m.remove(fs)
		m.logger.Warn("failed to open feed session", "symbol", symbol, "error", err)
		return err
	}

	fs.sess = sess
	close(fs.ready)

	if err := sess.SendJSON(deriv.TicksRequest{Ticks: symbol}); err != nil {
		sess.Close()
		m.remove(fs)
		m.logger.Warn("failed to subscribe ticks", "symbol", symbol, "error", err)
		return err
	}

	m.wg.Add(1)
	go m.consume(fs)

	m.logger.Info("feed session opened", "symbol", symbol)
	return nil
}

// Unsubscribe tears down the session for symbol. A single caller's
// signal closes the shared session for all remaining subscribers.
// No-op when no session exists.
func (m *Multiplexer) Unsubscribe(symbol string) {
	m.mu.Lock()
	fs, ok := m.registry[symbol]
	if ok {
		delete(m.registry, symbol)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	<-fs.ready
	if fs.sess != nil {
		fs.sess.Close()
	}
	m.logger.Info("feed session closed", "symbol", symbol)
}

// ActiveSymbols returns the symbols with a registry entry.
func (m *Multiplexer) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make([]string, 0, len(m.registry))
	for s := range m.registry {
		symbols = append(symbols, s)
	}
	return symbols
}

// Close tears down every session and rejects further subscribes.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*feedSession, 0, len(m.registry))
	for _, fs := range m.registry {
		sessions = append(sessions, fs)
	}
	m.registry = make(map[string]*feedSession)
	m.mu.Unlock()

	for _, fs := range sessions {
		<-fs.ready
		if fs.sess != nil {
			fs.sess.Close()
		}
	}
	m.wg.Wait()
}

// remove deletes the registry entry if it still maps to fs. A newer
// session for the same symbol is left untouched.
func (m *Multiplexer) remove(fs *feedSession) {
	m.mu.Lock()
	if cur, ok := m.registry[fs.symbol]; ok && cur == fs {
		delete(m.registry, fs.symbol)
	}
	m.mu.Unlock()
}

// consume drives one feed session until it ends, then clears the
// registry entry so a future subscribe reopens cleanly.
func (m *Multiplexer) consume(fs *feedSession) {
	defer m.wg.Done()
	defer m.remove(fs)

	for {
		select {
		case env, ok := <-fs.sess.Messages():
			if !ok {
				return
			}
			if err := m.handle(fs, env); err != nil {
				m.logger.Warn("feed session send failed", "symbol", fs.symbol, "error", err)
				fs.sess.Close()
				return
			}
		case err := <-fs.sess.Errors():
			m.logger.Warn("feed session error", "symbol", fs.symbol, "error", err)
			fs.sess.Close()
			return
		}
	}
}

// handle dispatches one inbound frame for a symbol's session.
func (m *Multiplexer) handle(fs *feedSession, env deriv.Envelope) error {
	switch env.MsgType {
	case deriv.MsgTypeTick:
		if len(env.Tick) == 0 {
			return nil
		}
		m.bus.Emit(fs.symbol, EventAssetData, env.Tick)

		symbol := deriv.TickSymbol(env.Tick)
		if err := fs.sess.SendJSON(deriv.NewProposalRequest(symbol, deriv.ContractCall)); err != nil {
			return err
		}
		if err := fs.sess.SendJSON(deriv.NewProposalRequest(symbol, deriv.ContractPut)); err != nil {
			return err
		}

	case deriv.MsgTypeProposal:
		if env.Proposal == nil {
			return nil
		}
		var direction string
		if env.EchoReq != nil {
			direction = env.EchoReq.ContractType
		}
		m.bus.Emit(fs.symbol, EventProposal, ProposalEvent{
			Type: direction,
			Data: env.Proposal.Raw,
		})

	case deriv.MsgTypeTransaction:
		m.bus.Emit(fs.symbol, EventTransactionUpdate, TransactionEvent{
			Message: "Transaction occurred",
			Data:    env.Raw,
		})

	default:
		m.logger.Debug("ignoring feed message", "symbol", fs.symbol, "msg_type", env.MsgType)
	}

	return nil
}
